// Copyright 2020 Fugue, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package hash

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

type sha1Hasher struct{}

// SHA1 returns a Hasher using the SHA1 algorithm
func SHA1() Hasher {
	return &sha1Hasher{}
}

func (hasher *sha1Hasher) Object(obj interface{}) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return hasher.sum(data), nil
}

func (hasher *sha1Hasher) String(s string) (string, error) {
	return hasher.sum([]byte(s)), nil
}

func (hasher *sha1Hasher) sum(data []byte) string {
	h := sha1.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
