// Package server implements the gRPC AccountabilityVersions service
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/orgstore/internal/config"
	"github.com/nainya/orgstore/internal/logger"
	"github.com/nainya/orgstore/internal/metrics"
	"github.com/nainya/orgstore/pkg/accountability"
	"github.com/nainya/orgstore/pkg/chain"
	"github.com/nainya/orgstore/pkg/storage"
)

// Server implements AccountabilityVersionsServer on top of the chain manager
type Server struct {
	kv       *storage.KV
	accounts *accountability.Store
	chains   *chain.Manager
	metrics  *metrics.Metrics
	log      *logger.Logger

	startTime time.Time
}

// Options configures NewServer
type Options struct {
	Storage config.StorageConfig
	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Clock   chain.Clock // defaults to chain.SystemClock
}

// NewServer opens the database and wires the stores
func NewServer(opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	kv := &storage.KV{
		Path:           opts.Storage.Path,
		InMemory:       opts.Storage.InMemory,
		SyncWrites:     opts.Storage.SyncWrites,
		GCInterval:     opts.Storage.GCInterval,
		GCDiscardRatio: opts.Storage.GCDiscardRatio,
		Logger:         log.DbLogger().GetZerolog(),
	}
	if err := kv.Open(); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	accounts := accountability.NewStore(kv)
	chainOpts := []chain.Option{
		chain.WithLogger(log.ChainLogger()),
		chain.WithIdentity(MetadataIdentity{}),
	}
	if opts.Clock != nil {
		chainOpts = append(chainOpts, chain.WithClock(opts.Clock))
	}

	return &Server{
		kv:        kv,
		accounts:  accounts,
		chains:    chain.NewManager(kv, accounts, chainOpts...),
		metrics:   opts.Metrics,
		log:       log,
		startTime: time.Now(),
	}, nil
}

// Close closes the database
func (s *Server) Close() error {
	return s.kv.Close()
}

// Ready reports whether the database can serve requests
func (s *Server) Ready() error {
	return s.kv.Ping()
}

// observe times a storage operation for metrics and debug logs
func (s *Server) observe(operation string, records func() int, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)

	s.metrics.RecordDbOperation(operation, err, duration)
	count := 0
	if err == nil && records != nil {
		count = records()
	}
	s.log.LogDbOperation(operation, duration, count, err)
	return err
}

func reply(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

func one() int { return 1 }

// ========== Accountabilities ==========

func (s *Server) CreateAccountability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in createAccountabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	acc := &accountability.Accountability{ID: in.ID, Type: in.Type, Parent: in.Parent, Child: in.Child}
	err := s.observe("create_accountability", one, func() error {
		return s.accounts.Create(acc)
	})
	if err != nil {
		return nil, toStatus(err)
	}

	s.metrics.AccountabilitiesTotal.Inc()
	return reply(accountabilityFields(acc))
}

func (s *Server) ListAccountabilities(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listAccountabilitiesRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	var accs []*accountability.Accountability
	err := s.observe("list_accountabilities", func() int { return len(accs) }, func() error {
		var err error
		if in.PartyID != "" {
			accs, err = s.accounts.ByParty(in.PartyID)
		} else {
			accs, err = s.accounts.List(in.Limit)
		}
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}

	list := make([]interface{}, 0, len(accs))
	for _, acc := range accs {
		list = append(list, accountabilityFields(acc))
	}
	return reply(map[string]interface{}{"accountabilities": list, "count": len(list)})
}

// ========== Version chains ==========

func (s *Server) InsertVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in insertVersionRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}
	attrs, err := in.attributes()
	if err != nil {
		return nil, toStatus(err)
	}

	var (
		v       *chain.Version
		created bool
	)
	err = s.observe("insert_version", one, func() error {
		var err error
		v, created, err = s.chains.InsertVersion(ctx, in.AccountabilityID, attrs)
		return err
	})
	s.metrics.RecordInsert(created, err)
	if err != nil {
		return nil, toStatus(err)
	}

	return reply(map[string]interface{}{"version": versionFields(v), "created": created})
}

func (s *Server) GetHead(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in accountabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	var head *chain.Version
	err := s.observe("get_head", one, func() error {
		var err error
		head, err = s.chains.Head(in.AccountabilityID)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(versionFields(head))
}

func (s *Server) ListHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in accountabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	var versions []*chain.Version
	err := s.observe("list_history", func() int { return len(versions) }, func() error {
		var err error
		versions, err = s.chains.History(in.AccountabilityID)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]interface{}{"versions": versionList(versions), "count": len(versions)})
}

func (s *Server) DeleteVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in versionRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	err := s.observe("delete_version", one, func() error {
		return s.chains.Delete(ctx, in.VersionID)
	})
	removed := 0
	if err == nil {
		removed = 1
	}
	s.metrics.RecordDelete(removed, err)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]interface{}{"deleted": in.VersionID})
}

func (s *Server) PurgeChain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in accountabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	var removed int
	err := s.observe("purge_chain", func() int { return removed }, func() error {
		var err error
		removed, err = s.chains.Purge(ctx, in.AccountabilityID)
		return err
	})
	s.metrics.RecordDelete(removed, err)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]interface{}{"removed": removed})
}

func (s *Server) VersionAsOf(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in versionAsOfRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}
	instant, err := time.Parse(time.RFC3339Nano, in.AsOf)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: as_of: %v", chain.ErrInvalidArgument, err))
	}

	var v *chain.Version
	err = s.observe("version_as_of", one, func() error {
		var err error
		v, err = s.chains.VersionAsOf(in.AccountabilityID, instant)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(versionFields(v))
}

func (s *Server) ActiveOn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in activeOnRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}
	d, err := civil.ParseDate(in.Date)
	if err != nil {
		return nil, toStatus(fmt.Errorf("%w: date: %v", chain.ErrInvalidArgument, err))
	}

	var active bool
	err = s.observe("active_on", one, func() error {
		var err error
		active, err = s.chains.ActiveOn(in.AccountabilityID, d)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]interface{}{"active": active, "date": d.String()})
}

func (s *Server) ListByCreator(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in creatorRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	var versions []*chain.Version
	err := s.observe("list_by_creator", func() int { return len(versions) }, func() error {
		var err error
		versions, err = s.chains.CreatedBy(in.User)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(map[string]interface{}{"versions": versionList(versions), "count": len(versions)})
}

// VerifyChain reports violations in the response rather than as an error
func (s *Server) VerifyChain(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in accountabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, toStatus(err)
	}

	result := map[string]interface{}{"valid": true}
	verr := s.chains.Verify(in.AccountabilityID)
	var iv *chain.InvariantViolation
	switch {
	case errors.As(verr, &iv):
		s.metrics.RecordViolation(verr)
		result["valid"] = false
		result["invariant"] = iv.Invariant
		result["version_id"] = iv.VersionID
		result["detail"] = iv.Detail
		return reply(result)
	case verr != nil:
		return nil, toStatus(verr)
	}

	pairs, err := s.chains.Duplicates(in.AccountabilityID)
	if err != nil {
		return nil, toStatus(err)
	}
	dups := make([]interface{}, 0, len(pairs))
	for _, p := range pairs {
		dups = append(dups, map[string]interface{}{"newer": p.Newer.ID, "older": p.Older.ID})
	}
	result["duplicates"] = dups
	return reply(result)
}

func (s *Server) GetStats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var accs []*accountability.Accountability
	err := s.observe("stats", func() int { return len(accs) }, func() error {
		var err error
		accs, err = s.accounts.List(0)
		return err
	})
	if err != nil {
		return nil, toStatus(err)
	}

	withChain := 0
	for _, acc := range accs {
		if acc.Head != "" {
			withChain++
		}
	}

	lsm, vlog := s.kv.Size()
	s.metrics.UpdateDbStats(lsm, vlog)

	return reply(map[string]interface{}{
		"accountabilities": len(accs),
		"with_chain":       withChain,
		"lsm_bytes":        lsm,
		"vlog_bytes":       vlog,
		"uptime_seconds":   int64(time.Since(s.startTime).Seconds()),
	})
}
