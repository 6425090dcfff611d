// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cockroachdb/txnkit/pkg/client"
	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
)

// chaosSender is an in-process Sender that serves every request from
// memory and aborts a configurable fraction of commits, simulating lock
// contention. Raised lock priority shrinks a transaction's abort
// probability, mirroring how priority biases contention server-side.
type chaosSender struct {
	abortRate float64
	hintRate  float64

	mu struct {
		syncutil.Mutex
		rng      *rand.Rand
		nextID   int
		priority map[string]int32
	}
}

var _ client.Sender = (*chaosSender)(nil)

func newChaosSender(abortRate, hintRate float64) *chaosSender {
	s := &chaosSender{abortRate: abortRate, hintRate: hintRate}
	s.mu.rng = rand.New(rand.NewSource(timeutil.Now().UnixNano()))
	s.mu.priority = make(map[string]int32)
	return s
}

func (s *chaosSender) beginLocked(priority int32) *txnpb.Transaction {
	s.mu.nextID++
	id := fmt.Sprintf("chaos-%06d", s.mu.nextID)
	s.mu.priority[id] = priority
	return &txnpb.Transaction{ID: []byte(id)}
}

func (s *chaosSender) BeginTransaction(
	_ context.Context, req *txnpb.BeginTransactionRequest,
) (*txnpb.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(req.Options.Priority), nil
}

func (s *chaosSender) Read(
	_ context.Context, req *txnpb.ReadRequest,
) (*txnpb.ResultSet, error) {
	return s.result(req.Selector), nil
}

func (s *chaosSender) ExecuteSQL(
	_ context.Context, req *txnpb.ExecuteSQLRequest,
) (*txnpb.ResultSet, error) {
	return s.result(req.Selector), nil
}

func (s *chaosSender) Commit(
	_ context.Context, req *txnpb.CommitRequest,
) (*txnpb.CommitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := string(req.TransactionID)
	priority := s.mu.priority[id]
	delete(s.mu.priority, id)

	// Each priority step halves the chance of losing the locks.
	rate := s.abortRate
	for i := int32(0); i < priority; i++ {
		rate /= 2
	}
	if s.mu.rng.Float64() < rate {
		abort := &txnpb.TransactionAbortedError{}
		if s.mu.rng.Float64() < s.hintRate {
			abort.RetryDelay = time.Duration(1+s.mu.rng.Intn(20)) * time.Millisecond
		}
		return nil, abort
	}
	return &txnpb.CommitResponse{
		CommitTimestamp: hlc.FromGoTime(timeutil.Now()),
	}, nil
}

func (s *chaosSender) Rollback(_ context.Context, req *txnpb.RollbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mu.priority, string(req.TransactionID))
	return nil
}

func (s *chaosSender) result(sel txnpb.TransactionSelector) *txnpb.ResultSet {
	res := &txnpb.ResultSet{Rows: []txnpb.Row{{[]byte("100")}}}
	if sel.Kind() == txnpb.SelectorBegin {
		s.mu.Lock()
		defer s.mu.Unlock()
		res.Transaction = s.beginLocked(sel.Options().Priority)
	}
	return res
}
