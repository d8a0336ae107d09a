package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/town/internal/game/town"
	"github.com/cory-johannsen/town/internal/testutil"
)

func TestReportSeeded_PasswordsBypassLogger(t *testing.T) {
	dir := town.NewDirectory(town.DirectoryConfig{Capacity: 5, PasswordCost: bcrypt.MinCost}, &testutil.FakeProvider{}, zaptest.NewLogger(t))
	seeded, err := dir.Seed([]town.SeedTown{
		{FriendlyName: "Generated", Public: true},
		{FriendlyName: "Configured", UpdatePassword: "from-file"},
	})
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	generated := seeded[0].Password
	require.NotEmpty(t, generated)

	core, logs := observer.New(zapcore.DebugLevel)
	var out bytes.Buffer
	reportSeeded(zap.New(core), &out, seeded)

	require.Equal(t, 2, logs.FilterMessage("seeded town").Len())
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(v), generated, "field %s carries the password", k)
		}
	}
	assert.Contains(t, out.String(), generated)
	assert.Contains(t, out.String(), seeded[0].Town.ID())
	assert.NotContains(t, out.String(), "from-file", "configured passwords are not echoed")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")))
}
