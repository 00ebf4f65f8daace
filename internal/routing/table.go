// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package routing

import (
	"sort"
	"sync"
)

// Table maps service names to their bindings.
type Table struct {
	bindings sync.Map
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Add(b *Binding) {
	t.bindings.Store(b.Service, b)
}

func (t *Table) Remove(service string) {
	t.bindings.Delete(service)
}

func (t *Table) Lookup(service string) (*Binding, bool) {
	v, ok := t.bindings.Load(service)
	if !ok {
		return nil, false
	}
	return v.(*Binding), true
}

// All returns the bindings sorted by service name.
func (t *Table) All() []*Binding {
	var out []*Binding
	t.bindings.Range(func(_, v any) bool {
		out = append(out, v.(*Binding))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
