/*
Copyright (c) The DynamoDBtoCSV Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edasque/DynamoDBtoCSV/src/config"
)

type MyFormatter struct{}

var levelList = []string{
	"PANIC",
	"FATAL",
	"ERROR",
	"WARN",
	"INFO",
	"DEBUG",
	"TRACE",
}

func (mf *MyFormatter) Format(entry *log.Entry) ([]byte, error) {
	level := levelList[int(entry.Level)]
	fileName := "?"
	line := 0
	if entry.Caller != nil {
		fileName = filepath.Base(entry.Caller.File)
		line = entry.Caller.Line
	}
	// Example log line:
	// 2022-03-23 12:16:42 INFO export.go:27 Logging initialised.
	msg := fmt.Sprintf("%s %s %s:%d %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), level,
		fileName, line, entry.Message)
	return []byte(msg), nil
}

var runID = uuid.New()

func defaultLogDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "ddb2csv")
}

func InitLogging(logDir string, disableLogging bool, cmdName string) {
	if disableLogging {
		log.SetOutput(io.Discard)
		return
	}
	if logDir == "" {
		logDir = defaultLogDir()
	}
	logFileName := filepath.Join(logDir, fmt.Sprintf("ddb2csv-%s.log", cmdName))

	// lumberjack creates the directory and the file when missing.
	logRotator := &lumberjack.Logger{
		Filename:   logFileName,
		MaxSize:    200, // 200 MB log size before rotation
		MaxBackups: 10,  // Allow upto 10 logs at once before deleting oldest logs.
	}
	log.SetOutput(logRotator)
	log.SetLevel(config.LogrusLevel())

	log.SetReportCaller(true)
	log.SetFormatter(&MyFormatter{})
	log.Infof("Logging initialised. run-id=%s", runID)
	redactSecretsFromArgs()
	log.Infof("Args: %v", os.Args)
	log.Infof("Version: %s", getVersionInfo())
}

func redactSecretsFromArgs() {
	for i := 0; i < len(os.Args)-1; i++ {
		opt := os.Args[i]
		if opt == "--mfa" || opt == "-m" {
			os.Args[i+1] = "XXX"
		}
	}
}
