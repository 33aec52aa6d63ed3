package sources

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"rocketwatch/internal/event"
)

// LogEvent binds one ABI event to an emitted event name. Contract is empty
// for global events, which match any emitter.
type LogEvent struct {
	Contract string `mapstructure:"contract"`
	ABI      string `mapstructure:"abi"`
	Event    string `mapstructure:"event"`
	Name     string `mapstructure:"name"`
	Topic    string `mapstructure:"topic"`
}

func (e LogEvent) abiName() string {
	if e.ABI != "" {
		return e.ABI
	}
	return e.Contract
}

type LogConfig struct {
	Events    []LogEvent
	Global    []LogEvent
	BatchSize uint64
	Interval  time.Duration
}

type logBinding struct {
	spec  LogEvent
	event abi.Event
}

type bindingKey struct {
	addr   common.Address
	topic0 common.Hash
}

// LogSource turns EL event logs into events.
type LogSource struct {
	cfg       LogConfig
	chain     Chain
	contracts Contracts
	logger    *zap.Logger

	bindings    map[bindingKey]logBinding
	global      map[common.Hash]logBinding
	names       map[common.Address]string
	addresses   []common.Address
	topics      []common.Hash
	globalTopic []common.Hash
}

func NewLogSource(cfg LogConfig, chainClient Chain, contracts Contracts, logger *zap.Logger) *LogSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultLogBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	return &LogSource{
		cfg:       cfg,
		chain:     chainClient,
		contracts: contracts,
		logger:    logger.With(zap.String("source", "logs")),
	}
}

func (s *LogSource) Name() string            { return "logs" }
func (s *LogSource) Interval() time.Duration { return s.cfg.Interval }

// Init resolves contract addresses and topic hashes.
func (s *LogSource) Init(ctx context.Context) error {
	s.bindings = make(map[bindingKey]logBinding)
	s.global = make(map[common.Hash]logBinding)
	s.names = make(map[common.Address]string)
	s.addresses, s.topics, s.globalTopic = nil, nil, nil

	seenAddr := make(map[common.Address]bool)
	seenTopic := make(map[common.Hash]bool)
	for _, spec := range s.cfg.Events {
		addr, err := s.contracts.ResolveContract(ctx, spec.Contract)
		if err != nil {
			return fmt.Errorf("log source: %w", err)
		}
		ev, err := s.abiEvent(ctx, spec)
		if err != nil {
			return err
		}
		s.bindings[bindingKey{addr: addr, topic0: ev.ID}] = logBinding{spec: spec, event: ev}
		s.names[addr] = spec.Contract
		if !seenAddr[addr] {
			seenAddr[addr] = true
			s.addresses = append(s.addresses, addr)
		}
		if !seenTopic[ev.ID] {
			seenTopic[ev.ID] = true
			s.topics = append(s.topics, ev.ID)
		}
	}
	for _, spec := range s.cfg.Global {
		ev, err := s.abiEvent(ctx, spec)
		if err != nil {
			return err
		}
		s.global[ev.ID] = logBinding{spec: spec, event: ev}
		s.globalTopic = append(s.globalTopic, ev.ID)
	}
	s.logger.Info("log source ready",
		zap.Int("contracts", len(s.addresses)),
		zap.Int("events", len(s.bindings)),
		zap.Int("global_events", len(s.global)))
	return nil
}

func (s *LogSource) abiEvent(ctx context.Context, spec LogEvent) (abi.Event, error) {
	parsed, err := s.contracts.ABI(ctx, spec.abiName())
	if err != nil {
		return abi.Event{}, fmt.Errorf("log source: %w", err)
	}
	ev, ok := parsed.Events[spec.Event]
	if !ok {
		return abi.Event{}, fmt.Errorf("log source: %s has no event %s", spec.abiName(), spec.Event)
	}
	return ev, nil
}

const defaultLogBatchSize = 1000

func (s *LogSource) Run(ctx context.Context, w Window) (Result, error) {
	var res Result
	batches, err := w.Batches(s.cfg.BatchSize)
	if err != nil {
		return res, err
	}
	for _, b := range batches {
		logs, err := s.fetch(ctx, b)
		if err != nil {
			return res, err
		}
		ordinals := make(map[string]int)
		for _, log := range logs {
			e, err := s.toEvent(ctx, log, ordinals)
			if err != nil {
				res.soft(err)
				continue
			}
			if e != nil {
				res.Events = append(res.Events, e)
			}
		}
		s.logger.Debug("logs scanned",
			zap.Uint64("from", b.From),
			zap.Uint64("to", b.To),
			zap.Int("logs", len(logs)))
	}
	return res, nil
}

func (s *LogSource) fetch(ctx context.Context, r Window) ([]types.Log, error) {
	var logs []types.Log
	if len(s.addresses) > 0 {
		found, err := s.chain.FilterLogs(ctx, r.From, r.To, s.addresses, s.topics)
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", r.From, r.To, err)
		}
		logs = append(logs, found...)
	}
	if len(s.globalTopic) > 0 {
		found, err := s.chain.FilterLogs(ctx, r.From, r.To, nil, s.globalTopic)
		if err != nil {
			return nil, fmt.Errorf("filter global logs %d-%d: %w", r.From, r.To, err)
		}
		logs = append(logs, found...)
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
	// A contract log can also match a global topic.
	out := logs[:0]
	for i, log := range logs {
		if i > 0 && log.BlockNumber == logs[i-1].BlockNumber && log.Index == logs[i-1].Index {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (s *LogSource) toEvent(ctx context.Context, log types.Log, ordinals map[string]int) (*event.Event, error) {
	if log.Removed || len(log.Topics) == 0 {
		return nil, nil
	}
	binding, global := s.lookup(log)
	if binding == nil {
		return nil, nil
	}

	args, err := decodeLog(binding.event, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in tx %s log %d: %v (topics=%v data=0x%x)",
			event.ErrDecodeMismatch, binding.spec.Name, log.TxHash.Hex(), log.Index, err, log.Topics, log.Data)
	}
	if global {
		args["minipool"] = log.Address
	}

	topic := binding.spec.Topic
	if topic == "" {
		topic = event.TopicEvents
	}
	e := &event.Event{
		Topic:       topic,
		Name:        binding.spec.Name,
		Score:       event.Score(log.BlockNumber, uint64(log.TxIndex), uint64(log.Index)),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		Contract:    s.names[log.Address],
		Address:     log.Address.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Args:        args,
	}
	e.UniqueID = logUniqueID(log, e.Name, ordinals)

	if ts, err := s.chain.BlockTimestamp(ctx, log.BlockNumber); err == nil {
		e.Timestamp = ts
	}
	s.attachProposalMessage(ctx, e)
	return e, nil
}

func (s *LogSource) lookup(log types.Log) (*logBinding, bool) {
	if b, ok := s.bindings[bindingKey{addr: log.Address, topic0: log.Topics[0]}]; ok {
		return &b, false
	}
	if b, ok := s.global[log.Topics[0]]; ok {
		return &b, true
	}
	return nil, false
}

// logUniqueID is stable across re-scans of the same block: it hashes the
// log content and counts identical logs within the transaction.
func logUniqueID(log types.Log, name string, ordinals map[string]int) string {
	payload := make([]byte, 0, len(log.Topics)*common.HashLength+len(log.Data))
	for _, t := range log.Topics {
		payload = append(payload, t.Bytes()...)
	}
	payload = append(payload, log.Data...)
	digest := fmt.Sprintf("%x", crypto.Keccak256(payload)[:4])

	key := log.TxHash.Hex() + ":" + name + ":" + digest
	ordinal := ordinals[key]
	ordinals[key] = ordinal + 1
	return fmt.Sprintf("%s:%d", key, ordinal)
}

func decodeLog(ev abi.Event, log types.Log) (event.Args, error) {
	raw := make(map[string]interface{})
	if err := ev.Inputs.UnpackIntoMap(raw, log.Data); err != nil {
		return nil, err
	}
	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(log.Topics)-1)
	}
	if err := abi.ParseTopicsIntoMap(raw, indexed, log.Topics[1:]); err != nil {
		return nil, err
	}
	args := make(event.Args, len(raw))
	for k, v := range raw {
		args[strings.TrimPrefix(k, "_")] = v
	}
	return args, nil
}

var proposalMessages = map[string]string{
	"odao_proposal_added_event":     "rocketDAOProposal",
	"pdao_proposal_submitted_event": "rocketDAOProtocolProposal",
}

func (s *LogSource) attachProposalMessage(ctx context.Context, e *event.Event) {
	contract, ok := proposalMessages[e.Name]
	if !ok {
		return
	}
	id, ok := e.Args.Big("proposalID")
	if !ok {
		return
	}
	values, err := s.contracts.Call(ctx, contract, "getMessage", new(big.Int).SetUint64(e.BlockNumber), id)
	if err != nil {
		s.logger.Warn("proposal message unavailable", zap.String("event", e.Name), zap.Error(err))
		return
	}
	if msg, ok := values[0].(string); ok {
		e.Args["message"] = msg
	}
}
