package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "orders.events", cfg.Exchange)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("DATABASE_URL", "x")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadBoard(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("BOARD_VIEWPORT", "cashier")
	t.Setenv("RESTAURANT_ID", "4")
	t.Setenv("ACTOR_ID", "12")
	t.Setenv("BOARD_TOKEN", "tok")
	t.Setenv("POLL_INTERVAL", "")

	cfg, err := LoadBoard()
	require.NoError(t, err)
	assert.Equal(t, "cashier", cfg.Viewport)
	assert.Equal(t, uint(4), cfg.RestaurantID)
	assert.Equal(t, uint(12), cfg.ActorID)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}

func TestLoadBoardValidation(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("BOARD_VIEWPORT", "customer")
	t.Setenv("RESTAURANT_ID", "4")
	t.Setenv("ACTOR_ID", "12")
	t.Setenv("BOARD_TOKEN", "tok")

	_, err := LoadBoard()
	assert.Error(t, err)

	t.Setenv("BOARD_VIEWPORT", "kitchen")
	t.Setenv("RESTAURANT_ID", "abc")
	_, err = LoadBoard()
	assert.Error(t, err)
}

func TestInitDBSqlite(t *testing.T) {
	db, err := InitDB(&Config{DBDriver: "sqlite", DatabaseURL: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	assert.True(t, db.Migrator().HasTable("orders"))
}
