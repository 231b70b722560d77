package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMalformedSetting reports a stored setting value that cannot be parsed.
// Distinct from store read failures: a malformed value stays malformed until
// an operator fixes it, while a read failure is worth retrying.
var ErrMalformedSetting = errors.New("malformed setting value")

// Setting keys. date_treshold keeps the historical misspelling; operators and
// stored rows in migrated installations depend on it.
const (
	SettingCleanFrequency = "clean_frequency"
	SettingDateCount      = "date_count"
	SettingDateThreshold  = "date_treshold"
	SettingTimezone       = "timezone"
)

const (
	DefaultDateCount     = 90
	DefaultDateThreshold = string(ThresholdUnitDays)
	DefaultTimezone      = "Europe/London"
)

const settingCacheTTL = 5 * time.Minute

type Setting struct {
	Key       string    `gorm:"primary_key;size:64" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Setting) TableName() string { return "settings" }

// SettingChange describes a single setting update, delivered to the
// cleanup.SettingsWatcher by whoever performed the write.
type SettingChange struct {
	Key    string
	Old    string
	New    string
	UserId int
}

// SettingStore reads and writes retention settings with a short redis cache
// in front of the settings table.
type SettingStore struct {
	DB *gorm.DB
}

func NewSettingStore(db *gorm.DB) *SettingStore {
	return &SettingStore{DB: db}
}

func settingCacheKey(key string) string { return "orders_retention:setting:" + key }

func (s *SettingStore) Get(ctx context.Context, key string, def string) (string, error) {
	var cached string
	if ok, err := config.GetRedisObject(settingCacheKey(key), &cached); err == nil && ok {
		return cached, nil
	}

	var row Setting
	err := s.DB.WithContext(ctx).First(&row, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	_ = config.SetRedisObject(settingCacheKey(key), row.Value, settingCacheTTL)
	return row.Value, nil
}

// Set upserts a setting and returns the previous value so the caller can
// build a SettingChange for the watcher.
func (s *SettingStore) Set(ctx context.Context, key string, value string) (old string, err error) {
	var row Setting
	err = s.DB.WithContext(ctx).First(&row, "`key` = ?", key).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	old = row.Value

	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Key: key, Value: value}).Error
	if err != nil {
		return "", err
	}
	_ = config.RemoveRedisKey(settingCacheKey(key))
	return old, nil
}

func (s *SettingStore) CleanFrequency(ctx context.Context) (CleanFrequency, error) {
	v, err := s.Get(ctx, SettingCleanFrequency, "")
	return CleanFrequency(v), err
}

// ThresholdConfig returns the configured (count, unit) pair. A malformed
// count is reported, not defaulted, so the caller can skip the cycle.
func (s *SettingStore) ThresholdConfig(ctx context.Context) (int, ThresholdUnit, error) {
	rawCount, err := s.Get(ctx, SettingDateCount, strconv.Itoa(DefaultDateCount))
	if err != nil {
		return 0, "", err
	}
	count, err := strconv.Atoi(rawCount)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s=%q", ErrMalformedSetting, SettingDateCount, rawCount)
	}
	rawUnit, err := s.Get(ctx, SettingDateThreshold, DefaultDateThreshold)
	if err != nil {
		return 0, "", err
	}
	return count, ThresholdUnit(rawUnit), nil
}

// Location returns the installation timezone, falling back to the fixed
// default when unset or unknown.
func (s *SettingStore) Location(ctx context.Context) *time.Location {
	name, err := s.Get(ctx, SettingTimezone, DefaultTimezone)
	if err != nil || name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return time.UTC
		}
	}
	return loc
}

// DeleteRetentionSettings removes every retention setting row. Uninstall path.
func (s *SettingStore) DeleteRetentionSettings(ctx context.Context) error {
	keys := []string{SettingCleanFrequency, SettingDateCount, SettingDateThreshold, SettingTimezone}
	if err := s.DB.WithContext(ctx).Where("`key` IN ?", keys).Delete(&Setting{}).Error; err != nil {
		return err
	}
	for _, k := range keys {
		_ = config.RemoveRedisKey(settingCacheKey(k))
	}
	return nil
}
