// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package client

import (
	"context"
	"fmt"

	"github.com/cockroachdb/txnkit/pkg/txnpb"
	"github.com/cockroachdb/txnkit/pkg/util/hlc"
	"github.com/cockroachdb/txnkit/pkg/util/syncutil"
)

// fakeSender is a scriptable in-process Sender. Nil hooks succeed with
// canned responses; every call is recorded under the lock.
type fakeSender struct {
	onBegin    func(*txnpb.BeginTransactionRequest) (*txnpb.Transaction, error)
	onRead     func(*txnpb.ReadRequest) (*txnpb.ResultSet, error)
	onExec     func(*txnpb.ExecuteSQLRequest) (*txnpb.ResultSet, error)
	onCommit   func(*txnpb.CommitRequest) (*txnpb.CommitResponse, error)
	onRollback func(*txnpb.RollbackRequest) error

	mu struct {
		syncutil.Mutex
		nextID    int
		nextTS    int64
		calls     int
		begins    []int32 // priorities, explicit and inline, in begin order
		reads     []txnpb.ReadRequest
		execs     []txnpb.ExecuteSQLRequest
		commits   []txnpb.CommitRequest
		rollbacks []txnpb.RollbackRequest
	}
}

func (s *fakeSender) newTxnLocked(priority int32) *txnpb.Transaction {
	s.mu.nextID++
	s.mu.begins = append(s.mu.begins, priority)
	return &txnpb.Transaction{ID: []byte(fmt.Sprintf("txn-%03d", s.mu.nextID))}
}

func (s *fakeSender) BeginTransaction(
	_ context.Context, req *txnpb.BeginTransactionRequest,
) (*txnpb.Transaction, error) {
	s.mu.Lock()
	s.mu.calls++
	s.mu.Unlock()
	if s.onBegin != nil {
		return s.onBegin(req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newTxnLocked(req.Options.Priority), nil
}

func (s *fakeSender) Read(
	_ context.Context, req *txnpb.ReadRequest,
) (*txnpb.ResultSet, error) {
	s.mu.Lock()
	s.mu.calls++
	s.mu.reads = append(s.mu.reads, *req)
	s.mu.Unlock()
	if s.onRead != nil {
		return s.onRead(req)
	}
	return s.defaultResult(req.Selector), nil
}

func (s *fakeSender) ExecuteSQL(
	_ context.Context, req *txnpb.ExecuteSQLRequest,
) (*txnpb.ResultSet, error) {
	s.mu.Lock()
	s.mu.calls++
	s.mu.execs = append(s.mu.execs, *req)
	s.mu.Unlock()
	if s.onExec != nil {
		return s.onExec(req)
	}
	return s.defaultResult(req.Selector), nil
}

func (s *fakeSender) Commit(
	_ context.Context, req *txnpb.CommitRequest,
) (*txnpb.CommitResponse, error) {
	s.mu.Lock()
	s.mu.calls++
	s.mu.commits = append(s.mu.commits, *req)
	s.mu.Unlock()
	if s.onCommit != nil {
		return s.onCommit(req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mu.nextTS++
	return &txnpb.CommitResponse{
		CommitTimestamp: hlc.Timestamp{WallTime: s.mu.nextTS * 1e9},
	}, nil
}

func (s *fakeSender) Rollback(_ context.Context, req *txnpb.RollbackRequest) error {
	s.mu.Lock()
	s.mu.calls++
	s.mu.rollbacks = append(s.mu.rollbacks, *req)
	s.mu.Unlock()
	if s.onRollback != nil {
		return s.onRollback(req)
	}
	return nil
}

// defaultResult answers a read or execute, beginning a transaction inline
// when the selector asks for one.
func (s *fakeSender) defaultResult(sel txnpb.TransactionSelector) *txnpb.ResultSet {
	res := &txnpb.ResultSet{Rows: []txnpb.Row{{[]byte("v")}}}
	if sel.Kind() == txnpb.SelectorBegin {
		s.mu.Lock()
		defer s.mu.Unlock()
		res.Transaction = s.newTxnLocked(sel.Options().Priority)
	}
	return res
}

func (s *fakeSender) beginPriorities() []int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int32(nil), s.mu.begins...)
}

func (s *fakeSender) counts() (begins, reads, execs, commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mu.begins), len(s.mu.reads), len(s.mu.execs),
		len(s.mu.commits), len(s.mu.rollbacks)
}

func (s *fakeSender) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.calls
}

func (s *fakeSender) recordedExecs() []txnpb.ExecuteSQLRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]txnpb.ExecuteSQLRequest(nil), s.mu.execs...)
}

func (s *fakeSender) recordedReads() []txnpb.ReadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]txnpb.ReadRequest(nil), s.mu.reads...)
}

func (s *fakeSender) recordedRollbacks() []txnpb.RollbackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]txnpb.RollbackRequest(nil), s.mu.rollbacks...)
}
