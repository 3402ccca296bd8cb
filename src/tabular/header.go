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
package tabular

// HeaderSet is the running, order-preserving set of column names of an
// export. Names are only ever appended; a name keeps its position for the
// lifetime of the set.
type HeaderSet struct {
	names []string
	index map[string]int
}

func NewHeaderSet(names ...string) *HeaderSet {
	h := &HeaderSet{index: make(map[string]int)}
	for _, name := range names {
		h.Add(name)
	}
	return h
}

// Add appends name if it has not been seen before and reports whether it did.
func (h *HeaderSet) Add(name string) bool {
	if _, ok := h.index[name]; ok {
		return false
	}
	h.index[name] = len(h.names)
	h.names = append(h.names, name)
	return true
}

func (h *HeaderSet) Contains(name string) bool {
	_, ok := h.index[name]
	return ok
}

func (h *HeaderSet) Len() int {
	return len(h.names)
}

// Names returns a copy of the names in first-seen order.
func (h *HeaderSet) Names() []string {
	return append([]string(nil), h.names...)
}

// Since returns the names appended after the first n.
func (h *HeaderSet) Since(n int) []string {
	if n >= len(h.names) {
		return nil
	}
	return append([]string(nil), h.names[n:]...)
}
