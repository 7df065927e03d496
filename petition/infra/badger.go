package infra

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"petition-gateway/petition/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	badgerEmailPrefix  = "sig:email:"
	badgerRegionPrefix = "sig:region:"
	badgerLastKey      = "sig:meta:last"

	// DefaultBadgerConflictRetries limita as novas tentativas após ErrConflict.
	DefaultBadgerConflictRetries = 16
)

// badgerRecord é o valor gravado por e-mail; inclui o fingerprint,
// que Signature não serializa.
type badgerRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	City        string    `json:"city"`
	Region      string    `json:"region"`
	Role        string    `json:"role,omitempty"`
	Message     string    `json:"message,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func recordOf(s domain.Signature) badgerRecord {
	return badgerRecord{
		ID:          s.ID,
		Name:        s.Name,
		Email:       s.Email,
		City:        s.City,
		Region:      s.Region,
		Role:        s.Role,
		Message:     s.Message,
		Fingerprint: s.Fingerprint,
		SubmittedAt: s.SubmittedAt,
	}
}

func (r badgerRecord) signature() domain.Signature {
	return domain.Signature{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		City:        r.City,
		Region:      r.Region,
		Role:        r.Role,
		Message:     r.Message,
		SubmittedAt: r.SubmittedAt,
		Fingerprint: r.Fingerprint,
	}
}

// BadgerStore persiste no KV embarcado badger.
//
// Put roda numa transação serializável que lê a chave do e-mail e grava o
// registro junto com o contador da região. Em ErrConflict a transação é
// refeita; a nova tentativa enxerga o registro que venceu.
type BadgerStore struct {
	db      *badger.DB
	clock   *monotonicClock
	logger  *slog.Logger
	retries int
	writeMu sync.Mutex
}

// NewBadgerStore abre o banco em dataDir/signatures. dataDir vazio roda em memória.
func NewBadgerStore(dataDir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := filepath.Join(dataDir, "signatures")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.
		WithLogger(newBadgerLogger(logger)).
		// INFO do badger é verboso demais
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s := &BadgerStore{
		db:      db,
		clock:   newMonotonicClock(),
		logger:  logger,
		retries: DefaultBadgerConflictRetries,
	}
	err = db.View(func(txn *badger.Txn) error {
		last, err := readLast(txn)
		if err != nil {
			return err
		}
		s.clock.observe(last)
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read last timestamp: %w", err)
	}
	return s, nil
}

// Put serializa as escritas deste processo: o horário lido e a ordem de commit
// ficam iguais. O badger não aceita dois processos no mesmo diretório.
func (s *BadgerStore) Put(ctx context.Context, c domain.Candidate) (domain.PutResult, error) {
	id := uuid.NewString()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.PutResult{}, storageErr("put signature", err)
		}
		res, err := s.tryPut(c, id)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, badger.ErrConflict) || attempt >= s.retries {
			return domain.PutResult{}, storageErr("put signature", err)
		}
		s.logger.Debug("badger txn conflict, retrying",
			"component", "store",
			"attempt", attempt+1,
		)
	}
}

func (s *BadgerStore) tryPut(c domain.Candidate, id string) (domain.PutResult, error) {
	var res domain.PutResult
	err := s.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(badgerEmailPrefix + c.Email)
		item, err := txn.Get(emailKey)
		switch {
		case err == nil:
			rec, err := decodeRecord(item)
			if err != nil {
				return err
			}
			res = domain.PutResult{Signature: rec.signature()}
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		regionKey := []byte(badgerRegionPrefix + c.Region)
		n, err := readCounter(txn, regionKey)
		if err != nil {
			return err
		}

		last, err := readLast(txn)
		if err != nil {
			return err
		}
		s.clock.observe(last)
		sig := domain.NewSignature(c, id, s.clock.Now())
		doc, err := json.Marshal(recordOf(sig))
		if err != nil {
			return err
		}
		at, err := sig.SubmittedAt.MarshalBinary()
		if err != nil {
			return err
		}
		if err := txn.Set(emailKey, doc); err != nil {
			return err
		}
		if err := txn.Set(regionKey, encodeCounter(n+1)); err != nil {
			return err
		}
		if err := txn.Set([]byte(badgerLastKey), at); err != nil {
			return err
		}
		res = domain.PutResult{Signature: sig, Created: true}
		return nil
	})
	return res, err
}

func (s *BadgerStore) Get(ctx context.Context, email string) (domain.Signature, error) {
	if err := ctx.Err(); err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	var sig domain.Signature
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerEmailPrefix + normalizeEmail(email)))
		if err != nil {
			return err
		}
		rec, err := decodeRecord(item)
		if err != nil {
			return err
		}
		sig = rec.signature()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Signature{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	return sig, nil
}

func (s *BadgerStore) CountAll(ctx context.Context) (int64, error) {
	counts, err := s.CountByRegion(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (s *BadgerStore) CountByRegion(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("count by region", err)
	}
	out := make(map[string]int64)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerRegionPrefix)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			region := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt counter for %s", region)
				}
				out[region] = int64(binary.BigEndian.Uint64(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("count by region", err)
	}
	return out, nil
}

func (s *BadgerStore) CountOne(ctx context.Context, region string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageErr("count region", err)
	}
	var n uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = readCounter(txn, []byte(badgerRegionPrefix+normalizeRegion(region)))
		return err
	})
	if err != nil {
		return 0, storageErr("count region", err)
	}
	return int64(n), nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func decodeRecord(item *badger.Item) (badgerRecord, error) {
	var rec badgerRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err
}

func readCounter(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt counter %s", key)
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}

// readLast devolve o maior submittedAt já gravado (zero se não houver).
func readLast(txn *badger.Txn) (time.Time, error) {
	var t time.Time
	item, err := txn.Get([]byte(badgerLastKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	err = item.Value(func(val []byte) error {
		return t.UnmarshalBinary(val)
	})
	return t, err
}

func encodeCounter(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}
