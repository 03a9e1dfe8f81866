package postgres

import (
	"strings"
	"testing"

	"jobboard/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNotification(t *testing.T) {
	t.Parallel()

	n, err := decodeNotification(`{"schema":"public","table":"jobs","type":"DELETE","id":"0b6c"}`)
	require.NoError(t, err)
	assert.Equal(t, notification{Schema: "public", Table: "jobs", Type: "DELETE", ID: "0b6c"}, n)

	ev := n.event()
	assert.Equal(t, domain.FeedDelete, ev.Kind)
	assert.Equal(t, "0b6c", ev.PostingID())
	assert.Nil(t, ev.New)
	assert.True(t, domain.FeedScope{Schema: "public", Table: "jobs"}.Matches(ev))
}

func TestDecodeNotification_NormalizesOperation(t *testing.T) {
	t.Parallel()

	n, err := decodeNotification(`{"schema":"public","table":"jobs","type":"insert","id":"1"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedInsert, n.event().Kind)
	assert.Nil(t, n.event().Old, "inserts are filled in from the store")
}

func TestDecodeNotification_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":     `{"schema":`,
		"unknown op":   `{"schema":"public","table":"jobs","type":"TRUNCATE","id":"1"}`,
		"missing id":   `{"schema":"public","table":"jobs","type":"UPDATE"}`,
		"empty object": `{}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeNotification(raw)
			assert.Error(t, err)
		})
	}
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	ms := Migrations("public", "jobs")
	require.Len(t, ms, 2)
	for i, m := range ms {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.Down)
	}
	assert.Contains(t, ms[0].Up, `"public"."jobs"`)
	assert.Contains(t, ms[0].Up, `"desc" TEXT`)
	assert.Contains(t, ms[1].Up, "pg_notify('"+NotifyChannel+"'")
	assert.True(t, strings.Contains(ms[1].Up, "AFTER INSERT OR UPDATE OR DELETE"))
}
