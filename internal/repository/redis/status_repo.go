package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"telecare-signaling/internal/database"
	"telecare-signaling/internal/domain"
	"telecare-signaling/pkg/constants"
)

// StatusRepository is the status-persistence collaborator behind the
// presence tracker: a write-through of doctor availability into Redis so
// other platform services can read it. The signaling path never reads it
// back and never waits on it.
type StatusRepository struct {
	client *database.RedisClient
}

// NewStatusRepository creates a new StatusRepository
func NewStatusRepository(client *database.RedisClient) *StatusRepository {
	return &StatusRepository{client: client}
}

func statusKey(doctorID string) string {
	return fmt.Sprintf("doctor:status:%s", doctorID)
}

const onlineSetKey = "doctor:status:online"

// SaveStatus persists one doctor's availability with a TTL; a stale entry
// expires on its own if the coordinator dies without cleaning up
func (r *StatusRepository) SaveStatus(ctx context.Context, presence domain.DoctorPresence) error {
	key := statusKey(presence.DoctorID)

	err := r.client.SafeHSet(ctx, key,
		"status", string(presence.Status),
		"is_available", strconv.FormatBool(presence.IsAvailable),
		"speciality", presence.Speciality,
		"last_active", presence.LastActive.UTC().Format(time.RFC3339),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save doctor status: %w", err)
	}

	if err := r.client.SafeExpire(ctx, key, constants.StatusEntryTTL).Err(); err != nil {
		return fmt.Errorf("failed to set status TTL: %w", err)
	}

	if err := r.client.SafeSAdd(ctx, onlineSetKey, presence.DoctorID).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}

	return nil
}

// RemoveStatus deletes a doctor's persisted availability on disconnect
func (r *StatusRepository) RemoveStatus(ctx context.Context, doctorID string) error {
	if err := r.client.SafeDel(ctx, statusKey(doctorID)).Err(); err != nil {
		return fmt.Errorf("failed to delete doctor status: %w", err)
	}

	if err := r.client.SafeSRem(ctx, onlineSetKey, doctorID).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}

	return nil
}

// ListOnlineDoctors retrieves the IDs of doctors with a persisted status,
// for other platform services and ops tooling
func (r *StatusRepository) ListOnlineDoctors(ctx context.Context) ([]string, error) {
	ids, err := r.client.SafeSMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online doctors: %w", err)
	}
	return ids, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *StatusRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
