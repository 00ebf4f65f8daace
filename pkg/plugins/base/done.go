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

package base

import (
	"sync"
)

// Done is a close-once signal for Connection.Done.
type Done struct {
	once sync.Once
	ch   chan struct{}
	mu   sync.Mutex
	err  error
}

func NewDone() *Done {
	return &Done{ch: make(chan struct{})}
}

func (d *Done) C() <-chan struct{} { return d.ch }

// Close records why the connection ended. Only the first call counts.
func (d *Done) Close(err error) {
	d.once.Do(func() {
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		close(d.ch)
	})
}

func (d *Done) Closed() bool {
	select {
	case <-d.ch:
		return true
	default:
		return false
	}
}

func (d *Done) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}
