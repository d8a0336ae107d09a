package main

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/game/town"
)

// reportSeeded logs each seeded town and writes generated update passwords
// to out, once. Passwords never reach the logger or its file sink.
func reportSeeded(logger *zap.Logger, out io.Writer, seeded []town.Seeded) {
	for _, s := range seeded {
		logger.Info("seeded town",
			zap.String("town_id", s.Town.ID()),
			zap.String("friendly_name", s.Town.FriendlyName()),
			zap.Int("conversation_areas", len(s.Town.ConversationAreas())),
			zap.Bool("generated_password", s.Password != ""),
		)
		if s.Password != "" {
			fmt.Fprintf(out, "town %s (%s) update password: %s\n", s.Town.ID(), s.Town.FriendlyName(), s.Password)
		}
	}
}
