package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// FindActiveAPIKeyByHash looks up an API key by its MD5 hex hash,
// returning it only if active and not expired: active ∧ (expires_at IS NULL
// ∨ expires_at > now()), per §4.1. MD5 is a weak, legacy scheme preserved
// for compatibility with already-provisioned keys (see DESIGN.md); no new
// credential issuance path exists in this service.
func (s *Store) FindActiveAPIKeyByHash(ctx context.Context, keyHashMD5 string) (ApiKey, bool, error) {
	const q = `
SELECT id, system_id, key_hash_md5, name, active, created_at, expires_at, allowed_addresses, allowed_systems
FROM api_keys
WHERE key_hash_md5 = $1 AND active AND (expires_at IS NULL OR expires_at > now())`
	var k ApiKey
	err := s.Pool.QueryRow(ctx, q, keyHashMD5).Scan(
		&k.ID, &k.SystemID, &k.KeyHashMD5, &k.Name, &k.Active, &k.CreatedAt, &k.ExpiresAt,
		&k.AllowedAddresses, &k.AllowedSystems,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApiKey{}, false, nil
	}
	if err != nil {
		return ApiKey{}, false, wrapErr("find_active_api_key_by_hash", err)
	}
	return k, true, nil
}
