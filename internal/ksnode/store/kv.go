package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainapsis/oko-tss/internal/ksnode/model"
	"github.com/chainapsis/oko-tss/pkg/kvstore"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// Key layout of the embedded store. Secondary "index" keys hold the primary
// key they point at.
const (
	kvUserPrefix    = "user/"    // user/<auth_type>/<auth_id> -> User
	kvWalletPrefix  = "wallet/"  // wallet/<public_key> -> Wallet
	kvSharePrefix   = "share/"   // share/<wallet_id> -> KeyShare
	kvSessionPrefix = "crs/id/"  // crs/id/<session_id> -> CommitRevealSession
	kvEphIndex      = "crs/eph/" // crs/eph/<pubkey_hex> -> session_id
	kvHashIndex     = "crs/th/"  // crs/th/<hash_hex> -> session_id
)

// KVStore implements Store on the embedded key/value backend. A single mutex
// serializes mutations; the embedded mode is single-process by definition, so
// this stands in for the relational transactions of the Postgres store.
type KVStore struct {
	mu sync.Mutex
	kv kvstore.Store
}

func NewKVStore(kv kvstore.Store) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) RegisterShare(_ context.Context, id Identity, curve types.CurveType, publicKey string, encShare []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.kv.Get(kvWalletPrefix + publicKey); err == nil {
		return "", types.E(types.ErrDuplicatePublicKey, "public key already registered on this node")
	} else if !errors.Is(err, kvstore.ErrKeyNotFound) {
		return "", types.WrapE(types.ErrUnknown, "query wallet by public key", err)
	}

	user, err := s.findOrCreateUser(id)
	if err != nil {
		return "", err
	}

	wallet := model.Wallet{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CurveType: string(curve),
		PublicKey: publicKey,
		CreatedAt: time.Now().UTC(),
	}
	share := model.KeyShare{
		ID:        uuid.NewString(),
		WalletID:  wallet.ID,
		EncShare:  encShare,
		CreatedAt: wallet.CreatedAt,
	}

	if err := s.putJSON(kvWalletPrefix+publicKey, wallet); err != nil {
		return "", err
	}
	if err := s.putJSON(kvSharePrefix+wallet.ID, share); err != nil {
		// Undo the wallet write so no half-registered state remains.
		_ = s.kv.Delete(kvWalletPrefix + publicKey)
		return "", err
	}
	return wallet.ID, nil
}

func (s *KVStore) findOrCreateUser(id Identity) (*model.User, error) {
	key := userKey(id)
	var user model.User
	err := s.getJSON(key, &user)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, types.WrapE(types.ErrUnknown, "query user", err)
	}

	user = model.User{
		ID:        uuid.NewString(),
		AuthType:  id.AuthType,
		AuthID:    id.AuthID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.putJSON(key, user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *KVStore) LookupShare(_ context.Context, id Identity, curve types.CurveType, publicKey string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var user model.User
	if err := s.getJSON(userKey(id), &user); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return "", nil, types.E(types.ErrUserNotFound, "user not registered on this node")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query user", err)
	}

	var wallet model.Wallet
	if err := s.getJSON(kvWalletPrefix+publicKey, &wallet); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return "", nil, types.E(types.ErrWalletNotFound, "no wallet for public key")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	if wallet.CurveType != string(curve) {
		return "", nil, types.E(types.ErrWalletNotFound, "no wallet for public key")
	}
	if wallet.UserID != user.ID {
		return "", nil, types.E(types.ErrUnauthorized, "wallet belongs to a different user")
	}

	var share model.KeyShare
	if err := s.getJSON(kvSharePrefix+wallet.ID, &share); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return "", nil, types.E(types.ErrKeyShareNotFound, "no key share stored for wallet")
		}
		return "", nil, types.WrapE(types.ErrUnknown, "query key share", err)
	}
	return share.ID, share.EncShare, nil
}

func (s *KVStore) MarkReshared(_ context.Context, shareID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Shares are keyed by wallet id, so resolve via scan. The per-node share
	// count is small (one row per wallet).
	keys, err := s.kv.Keys(kvSharePrefix)
	if err != nil {
		return types.WrapE(types.ErrUnknown, "scan key shares", err)
	}
	for _, key := range keys {
		var share model.KeyShare
		if err := s.getJSON(key, &share); err != nil {
			return types.WrapE(types.ErrUnknown, "read key share", err)
		}
		if share.ID != shareID {
			continue
		}
		share.ResharedAt = &at
		return s.putJSON(key, share)
	}
	return types.E(types.ErrKeyShareNotFound, "key share vanished during reshare")
}

func (s *KVStore) WalletExists(_ context.Context, id Identity, curve types.CurveType, publicKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wallet model.Wallet
	if err := s.getJSON(kvWalletPrefix+publicKey, &wallet); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return false, nil
		}
		return false, types.WrapE(types.ErrUnknown, "query wallet", err)
	}
	if wallet.CurveType != string(curve) {
		return false, nil
	}

	var user model.User
	if err := s.getJSON(userKey(id), &user); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return false, types.E(types.ErrPublicKeyInvalid, "public key registered to a different user")
		}
		return false, types.WrapE(types.ErrUnknown, "query user", err)
	}
	if wallet.UserID != user.ID {
		return false, types.E(types.ErrPublicKeyInvalid, "public key registered to a different user")
	}
	return true, nil
}

func (s *KVStore) CreateCommitSession(_ context.Context, sess *model.CommitRevealSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{
		kvSessionPrefix + sess.SessionID,
		kvEphIndex + sess.ClientEphemeralKey,
		kvHashIndex + sess.IDTokenHash,
	} {
		if _, err := s.kv.Get(key); err == nil {
			return types.E(types.ErrSessionAlreadyExists, "session id, ephemeral key or token hash already used")
		} else if !errors.Is(err, kvstore.ErrKeyNotFound) {
			return types.WrapE(types.ErrUnknown, "query commit-reveal session", err)
		}
	}

	if err := s.putJSON(kvSessionPrefix+sess.SessionID, sess); err != nil {
		return err
	}
	if err := s.kv.Put(kvEphIndex+sess.ClientEphemeralKey, []byte(sess.SessionID)); err != nil {
		return types.WrapE(types.ErrUnknown, "write ephemeral key index", err)
	}
	if err := s.kv.Put(kvHashIndex+sess.IDTokenHash, []byte(sess.SessionID)); err != nil {
		return types.WrapE(types.ErrUnknown, "write token hash index", err)
	}
	return nil
}

func (s *KVStore) RevealCommitSession(_ context.Context, sessionID string, now time.Time) (*model.CommitRevealSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sess model.CommitRevealSession
	if err := s.getJSON(kvSessionPrefix+sessionID, &sess); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, types.E(types.ErrInvalidTssSession, "unknown commit-reveal session")
		}
		return nil, types.WrapE(types.ErrUnknown, "query commit-reveal session", err)
	}

	if sess.State != model.SessionCommitted || now.After(sess.ExpiresAt) {
		return nil, types.E(types.ErrCommitRevealExpired, "session is expired or already revealed")
	}

	sess.State = model.SessionRevealed
	sess.RevealedAt = &now
	if err := s.putJSON(kvSessionPrefix+sessionID, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *KVStore) ExpireCommitSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.kv.Keys(kvSessionPrefix)
	if err != nil {
		return 0, types.WrapE(types.ErrUnknown, "scan commit-reveal sessions", err)
	}

	swept := 0
	for _, key := range keys {
		var sess model.CommitRevealSession
		if err := s.getJSON(key, &sess); err != nil {
			return swept, types.WrapE(types.ErrUnknown, "read commit-reveal session", err)
		}
		if sess.State != model.SessionCommitted || !now.After(sess.ExpiresAt) {
			continue
		}
		sess.State = model.SessionExpired
		if err := s.putJSON(key, sess); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (s *KVStore) Close() error { return s.kv.Close() }

func userKey(id Identity) string {
	return fmt.Sprintf("%s%s/%s", kvUserPrefix, id.AuthType, id.AuthID)
}

func (s *KVStore) getJSON(key string, out any) error {
	data, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *KVStore) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.WrapE(types.ErrUnknown, "marshal record", err)
	}
	if err := s.kv.Put(key, data); err != nil {
		return types.WrapE(types.ErrUnknown, "write record", err)
	}
	return nil
}
