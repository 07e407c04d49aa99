package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
)

// ErrReadFailed is returned for reads configured to fail
var ErrReadFailed = errors.New("read failed")

// MemoryChain is an in-memory staking contract used for testing and for
// running the service without an RPC endpoint
type MemoryChain struct {
	mu sync.Mutex

	totalStaked map[entity.Address]*big.Int
	stakeCount  map[entity.Address]*big.Int
	referrerOf  map[entity.Address]entity.Address
	referred    map[entity.Address][]entity.Address
	stakes      map[entity.Address][]memoryStake
	earnings    map[entity.Address]map[entity.Address]*big.Int
	logs        []entity.ReferralEdge

	failures    map[failureKey]error
	logFailures map[entity.Address]error

	batchCalls int
	reads      map[service.ReadKind]int
	listCalls  map[entity.Address]int
	logCalls   map[entity.Address]int
}

type memoryStake struct {
	record entity.StakeRecord
	slots  []entity.TokenAmount
}

type failureKey struct {
	kind service.ReadKind
	user entity.Address
}

// NewMemoryChain creates an empty in-memory chain
func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		totalStaked: make(map[entity.Address]*big.Int),
		stakeCount:  make(map[entity.Address]*big.Int),
		referrerOf:  make(map[entity.Address]entity.Address),
		referred:    make(map[entity.Address][]entity.Address),
		stakes:      make(map[entity.Address][]memoryStake),
		earnings:    make(map[entity.Address]map[entity.Address]*big.Int),
		failures:    make(map[failureKey]error),
		logFailures: make(map[entity.Address]error),
		reads:       make(map[service.ReadKind]int),
		listCalls:   make(map[entity.Address]int),
		logCalls:    make(map[entity.Address]int),
	}
}

func key(addr string) entity.Address {
	return entity.NormalizeAddress(addr)
}

// SetTotalStaked sets the direct total-staked counter of an address
func (m *MemoryChain) SetTotalStaked(addr string, amount *big.Int) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalStaked[key(addr)] = new(big.Int).Set(amount)
	return m
}

// SetStakeCount overrides the stake-count counter of an address
func (m *MemoryChain) SetStakeCount(addr string, count uint64) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stakeCount[key(addr)] = new(big.Int).SetUint64(count)
	return m
}

// AddStake appends a stake with its token slots; the stake count follows unless overridden
func (m *MemoryChain) AddStake(addr string, fullyUnstaked bool, slots ...entity.TokenAmount) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := key(addr)
	principal := new(big.Int)
	for _, s := range slots {
		principal.Add(principal, s.Amount)
	}
	m.stakes[a] = append(m.stakes[a], memoryStake{
		record: entity.StakeRecord{
			Index:           uint64(len(m.stakes[a])),
			Principal:       principal,
			IsFullyUnstaked: fullyUnstaked,
		},
		slots: slots,
	})
	return m
}

// Refer records referrer -> referees in both the list accessor and the event log
func (m *MemoryChain) Refer(referrer string, referees ...string) *MemoryChain {
	m.ReferInList(referrer, referees...)
	m.ReferInLogs(referrer, referees...)
	return m
}

// ReferInList records referees only in the per-address list accessor
func (m *MemoryChain) ReferInList(referrer string, referees ...string) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := key(referrer)
	for _, referee := range referees {
		e := key(referee)
		m.referred[r] = append(m.referred[r], e)
		m.referrerOf[e] = r
	}
	return m
}

// ReferInLogs records referees only as ReferralAssigned events
func (m *MemoryChain) ReferInLogs(referrer string, referees ...string) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := key(referrer)
	for _, referee := range referees {
		e := key(referee)
		m.logs = append(m.logs, entity.ReferralEdge{
			Referrer:    r,
			Referee:     e,
			BlockNumber: uint64(len(m.logs) + 1),
		})
		if _, ok := m.referrerOf[e]; !ok {
			m.referrerOf[e] = r
		}
	}
	return m
}

// SetReferralEarnings sets the claimable earnings of an address in one token
func (m *MemoryChain) SetReferralEarnings(addr, token string, amount *big.Int) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := key(addr)
	if m.earnings[a] == nil {
		m.earnings[a] = make(map[entity.Address]*big.Int)
	}
	m.earnings[a][key(token)] = new(big.Int).Set(amount)
	return m
}

// FailReads makes every read of kind for addr fail
func (m *MemoryChain) FailReads(kind service.ReadKind, addr string) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[failureKey{kind: kind, user: key(addr)}] = fmt.Errorf("%w: %s(%s)", ErrReadFailed, kind, key(addr))
	return m
}

// FailLogs makes log queries for referrer fail
func (m *MemoryChain) FailLogs(referrer string) *MemoryChain {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logFailures[key(referrer)] = fmt.Errorf("%w: logs(%s)", ErrReadFailed, key(referrer))
	return m
}

// BatchRead implements service.ChainReader
func (m *MemoryChain) BatchRead(ctx context.Context, calls []service.ReadCall) []service.ReadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batchCalls++
	results := make([]service.ReadResult, len(calls))
	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i] = m.read(call)
	}
	return results
}

func (m *MemoryChain) read(call service.ReadCall) service.ReadResult {
	user := key(string(call.User))
	m.reads[call.Kind]++
	if call.Kind == service.ReadReferredUsers {
		m.listCalls[user]++
	}
	if err, ok := m.failures[failureKey{kind: call.Kind, user: user}]; ok {
		return service.ReadResult{Err: err}
	}

	switch call.Kind {
	case service.ReadTotalStaked:
		return service.ReadResult{Amount: valueOrZero(m.totalStaked[user])}
	case service.ReadStakeCount:
		if count, ok := m.stakeCount[user]; ok {
			return service.ReadResult{Amount: new(big.Int).Set(count)}
		}
		return service.ReadResult{Amount: big.NewInt(int64(len(m.stakes[user])))}
	case service.ReadReferrerOf:
		referrer, ok := m.referrerOf[user]
		if !ok {
			referrer = entity.ZeroAddress
		}
		return service.ReadResult{Address: referrer}
	case service.ReadReferredUsers:
		return service.ReadResult{Addresses: append([]entity.Address{}, m.referred[user]...)}
	case service.ReadStakeRecord:
		stakes := m.stakes[user]
		if call.StakeIndex >= uint64(len(stakes)) {
			return service.ReadResult{Err: fmt.Errorf("%w: stake index %d out of range", ErrReadFailed, call.StakeIndex)}
		}
		record := stakes[call.StakeIndex].record
		return service.ReadResult{Stake: &record}
	case service.ReadStakeTokenAmount:
		stakes := m.stakes[user]
		if call.StakeIndex >= uint64(len(stakes)) {
			return service.ReadResult{Err: fmt.Errorf("%w: stake index %d out of range", ErrReadFailed, call.StakeIndex)}
		}
		slots := stakes[call.StakeIndex].slots
		if call.SlotIndex >= uint64(len(slots)) {
			return service.ReadResult{TokenAmount: &entity.TokenAmount{Token: entity.ZeroAddress, Amount: new(big.Int)}}
		}
		slot := slots[call.SlotIndex]
		return service.ReadResult{TokenAmount: &entity.TokenAmount{Token: key(string(slot.Token)), Amount: valueOrZero(slot.Amount)}}
	case service.ReadReferralEarnings:
		return service.ReadResult{Amount: valueOrZero(m.earnings[user][key(string(call.Token))])}
	}
	return service.ReadResult{Err: fmt.Errorf("unsupported read kind %d", call.Kind)}
}

// QueryReferralLogs implements service.ChainReader
func (m *MemoryChain) QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := key(string(referrer))
	m.logCalls[r]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.logFailures[r]; ok {
		return nil, err
	}

	var edges []entity.ReferralEdge
	for _, edge := range m.logs {
		if edge.Referrer == r && edge.BlockNumber >= fromBlock {
			edges = append(edges, edge)
		}
	}
	return edges, nil
}

// BatchCalls returns how many multi-read requests were issued
func (m *MemoryChain) BatchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchCalls
}

// Reads returns how many individual reads of kind were issued
func (m *MemoryChain) Reads(kind service.ReadKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[kind]
}

// ListCalls returns how many times the referee list of addr was read
func (m *MemoryChain) ListCalls(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[key(addr)]
}

// LogCalls returns how many log queries were issued for referrer
func (m *MemoryChain) LogCalls(referrer string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logCalls[key(referrer)]
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
