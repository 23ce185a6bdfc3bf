package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/CGroll04/sweetspots/module/proximity/domain"
	"github.com/CGroll04/sweetspots/module/proximity/internal/repository/permission"
)

var _ permission.AuthorizationStore = (*AuthorizationStore)(nil)

// AuthorizationStore keeps the device's last authorization report in a hash
// and relays upgrade requests over pub/sub.
type AuthorizationStore struct {
	rdb      *goredis.Client
	key      string
	upgrades string
}

func NewAuthorizationStore(rdb *goredis.Client, deviceID string) *AuthorizationStore {
	return &AuthorizationStore{
		rdb:      rdb,
		key:      "sweetspots:auth:" + deviceID,
		upgrades: UpgradeChannel(deviceID),
	}
}

func UpgradeChannel(deviceID string) string {
	return "sweetspots:auth:upgrade:" + deviceID
}

// Load returns NotDetermined with notifications off when nothing was reported yet.
func (s *AuthorizationStore) Load(ctx context.Context) (domain.Authorization, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return domain.Authorization{}, fmt.Errorf("load authorization: %w", err)
	}

	var auth domain.Authorization
	if v, ok := vals["location"]; ok {
		state, err := domain.ParseAuthorizationState(v)
		if err != nil {
			return domain.Authorization{}, fmt.Errorf("load authorization: %w", err)
		}
		auth.Location = state
	}
	if v, ok := vals["notifications"]; ok {
		auth.Notifications, _ = strconv.ParseBool(v)
	}
	return auth, nil
}

func (s *AuthorizationStore) Save(ctx context.Context, auth domain.Authorization) error {
	err := s.rdb.HSet(ctx, s.key,
		"location", auth.Location.String(),
		"notifications", strconv.FormatBool(auth.Notifications),
	).Err()
	if err != nil {
		return fmt.Errorf("save authorization: %w", err)
	}
	return nil
}

func (s *AuthorizationStore) RequestUpgrade(ctx context.Context) error {
	if err := s.rdb.Publish(ctx, s.upgrades, domain.AuthAlways.String()).Err(); err != nil {
		return fmt.Errorf("publish upgrade request: %w", err)
	}
	return nil
}
