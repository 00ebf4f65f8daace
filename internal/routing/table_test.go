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
	"fmt"
	"sync"
	"testing"
)

func binding(service string) *Binding {
	return &Binding{Service: service}
}

func TestTableAddAndLookup(t *testing.T) {
	table := NewTable()
	table.Add(&Binding{Service: "echo", Factory: "default"})

	got, ok := table.Lookup("echo")
	if !ok {
		t.Fatal("expected binding to be found")
	}
	if got.Factory != "default" {
		t.Fatalf("expected factory default, got %s", got.Factory)
	}
}

func TestTableLookupMiss(t *testing.T) {
	table := NewTable()
	if _, ok := table.Lookup("nonexistent"); ok {
		t.Fatal("expected binding not to be found")
	}
}

func TestTableRemove(t *testing.T) {
	table := NewTable()
	table.Add(binding("echo"))
	table.Remove("echo")

	if _, ok := table.Lookup("echo"); ok {
		t.Fatal("expected binding to be removed")
	}
}

func TestTableAllIsSorted(t *testing.T) {
	table := NewTable()
	table.Add(binding("new-b"))
	table.Add(binding("new-a"))
	table.Add(binding("old"))
	table.Remove("old")

	all := table.All()
	if len(all) != 2 || all[0].Service != "new-a" || all[1].Service != "new-b" {
		t.Fatalf("unexpected bindings %v", all)
	}
}

func TestTableConcurrentAccess(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("svc-%d", n)
			table.Add(binding(name))
			table.Lookup(name)
			table.Remove(name)
		}(i)
	}
	wg.Wait()
}
