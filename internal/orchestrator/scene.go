package orchestrator

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scene bounds one agent run.
type Scene struct {
	Name      string
	MaxTurns  int
	BudgetUSD decimal.Decimal
	Timeout   time.Duration
}

const DefaultScene = "review"

var scenes = map[string]Scene{
	"quick":  {Name: "quick", MaxTurns: 2, BudgetUSD: decimal.RequireFromString("0.20"), Timeout: 60 * time.Second},
	"review": {Name: "review", MaxTurns: 3, BudgetUSD: decimal.RequireFromString("0.50"), Timeout: 180 * time.Second},
	"deep":   {Name: "deep", MaxTurns: 5, BudgetUSD: decimal.RequireFromString("1.00"), Timeout: 300 * time.Second},
}

// SceneByName falls back to the review scene for unknown names.
func SceneByName(name string) Scene {
	if s, ok := scenes[name]; ok {
		return s
	}
	return scenes[DefaultScene]
}
