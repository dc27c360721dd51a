package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDBName(t *testing.T) {
	tests := []struct {
		dsn, name, want string
	}{
		{"postgres://u:p@localhost:5432/postgres?sslmode=disable", "ring", "postgres://u:p@localhost:5432/ring?sslmode=disable"},
		{"postgresql://u@db/old", "/new", "postgresql://u@db/new"},
		{"u@db:5432", "ring", "postgres://u@db:5432/ring"},
	}
	for _, tt := range tests {
		got, err := WithDBName(tt.dsn, tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := WithDBName("", "ring")
	assert.Error(t, err)
}

func TestWithScheme(t *testing.T) {
	got, err := WithScheme("postgres://u:p@localhost:5432/ring?sslmode=disable", "pgx5")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://u:p@localhost:5432/ring?sslmode=disable", got)
}
