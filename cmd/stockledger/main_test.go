package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAsOf(t *testing.T) {
	zero, err := parseAsOf("")
	require.NoError(t, err)
	require.True(t, zero.IsZero())

	day, err := parseAsOf("2026-05-20")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), day)

	ts, err := parseAsOf("2026-05-20T08:30:00+07:00")
	require.NoError(t, err)
	require.True(t, ts.Equal(time.Date(2026, 5, 20, 1, 30, 0, 0, time.UTC)))

	_, err = parseAsOf("20/05/2026")
	require.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	a := newApp()
	names := map[string][]string{}
	for _, cmd := range a.Commands {
		subs := []string{}
		for _, sub := range cmd.Subcommands {
			subs = append(subs, sub.Name)
		}
		names[cmd.Name] = subs
	}
	require.Equal(t, map[string][]string{
		"serve":   {},
		"worker":  {},
		"migrate": {"up", "down"},
		"jobs":    {"trigger", "stats"},
		"ledger":  {"verify", "expire"},
		"alerts":  {"ack", "list"},
	}, names)
}
