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

package memory

import (
	"context"
	"maps"
	"sort"

	"github.com/cybervault/cybervault/internal/authz"
	"github.com/cybervault/cybervault/internal/scan"
)

type scanRepo struct{ s *Store }

func cloneScan(sc *scan.Scan) *scan.Scan {
	cp := *sc
	cp.FindingsCount = maps.Clone(sc.FindingsCount)
	return &cp
}

func (r scanRepo) get(scope authz.Scope, id string) (*scan.Scan, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	sc, ok := r.s.scans[id]
	if !ok || sc.OrgID != scope.OrgID() {
		return nil, scan.ErrNotFound
	}
	return sc, nil
}

func (r scanRepo) Insert(_ context.Context, scope authz.Scope, sc *scan.Scan) error {
	if !scope.Valid() {
		return authz.ErrMissingOrganization
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := cloneScan(sc)
	cp.OrgID = scope.OrgID()
	r.s.scans[cp.ID] = cp
	return nil
}

func (r scanRepo) Get(_ context.Context, scope authz.Scope, id string) (*scan.Scan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sc, err := r.get(scope, id)
	if err != nil {
		return nil, err
	}
	return cloneScan(sc), nil
}

func (r scanRepo) List(_ context.Context, scope authz.Scope, filter scan.ListFilter) ([]*scan.Scan, error) {
	if !scope.Valid() {
		return nil, authz.ErrMissingOrganization
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*scan.Scan{}
	for _, sc := range r.s.scans {
		if sc.OrgID != scope.OrgID() {
			continue
		}
		if filter.Status != "" && sc.Status != filter.Status {
			continue
		}
		out = append(out, cloneScan(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Offset, filter.Limit), nil
}

func (r scanRepo) Modify(_ context.Context, scope authz.Scope, id string, fn scan.Mutation) (*scan.Scan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, err := r.get(scope, id)
	if err != nil {
		return nil, err
	}
	next := cloneScan(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.OrgID = cur.OrgID
	r.s.scans[id] = next
	return cloneScan(next), nil
}

func (r scanRepo) ListScheduled(_ context.Context) ([]*scan.Scan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*scan.Scan
	for _, sc := range r.s.scans {
		if sc.Schedule.Enabled {
			out = append(out, cloneScan(sc))
		}
	}
	return out, nil
}

func (r scanRepo) InsertResult(_ context.Context, scope authz.Scope, res *scan.Result) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sc, err := r.get(scope, res.ScanID)
	if err != nil {
		return err
	}
	cp := *res
	cp.OrgID = sc.OrgID
	r.s.results[sc.ID] = append(r.s.results[sc.ID], &cp)
	return nil
}

func (r scanRepo) ListResults(_ context.Context, scope authz.Scope, scanID string) ([]*scan.Result, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, err := r.get(scope, scanID); err != nil {
		return nil, err
	}
	out := make([]*scan.Result, 0, len(r.s.results[scanID]))
	for _, res := range r.s.results[scanID] {
		cp := *res
		out = append(out, &cp)
	}
	return out, nil
}

func (r scanRepo) ModifyResult(_ context.Context, scope authz.Scope, scanID, resultID string, fn scan.ResultMutation) (*scan.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, err := r.get(scope, scanID); err != nil {
		return nil, err
	}
	for i, res := range r.s.results[scanID] {
		if res.ID != resultID {
			continue
		}
		next := *res
		if err := fn(&next); err != nil {
			return nil, err
		}
		next.ID, next.ScanID, next.OrgID = res.ID, res.ScanID, res.OrgID
		r.s.results[scanID][i] = &next
		out := next
		return &out, nil
	}
	return nil, scan.ErrResultNotFound
}
