// Copyright 2026 The CyberVault Authors
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

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

type sealedFields struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Outcome      Outcome        `json:"outcome"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Timestamp    string         `json:"timestamp"`
}

// Seal links e to prevHash and sets its Hash. The timestamp is truncated to
// microseconds so that the hash survives a round trip through Postgres.
func Seal(prevHash string, e *Entry) error {
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	e.PrevHash = prevHash
	sum, err := digest(prevHash, e)
	if err != nil {
		return err
	}
	e.Hash = sum
	return nil
}

func digest(prevHash string, e *Entry) (string, error) {
	payload, err := json.Marshal(sealedFields{
		ID:           e.ID,
		OrgID:        e.OrgID,
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Outcome:      e.Outcome,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode audit entry: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte{'\n'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks a chain given in append order. It returns the ID of the
// first entry whose link or hash does not match.
func Verify(entries []*Entry) (string, error) {
	prev := ""
	for _, e := range entries {
		if e.PrevHash != prev {
			return e.ID, ErrChainBroken
		}
		sum, err := digest(e.PrevHash, e)
		if err != nil {
			return e.ID, err
		}
		if sum != e.Hash {
			return e.ID, ErrChainBroken
		}
		prev = e.Hash
	}
	return "", nil
}
