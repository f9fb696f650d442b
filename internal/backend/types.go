// Package backend defines the remote contracts the client core consumes and
// an HTTP implementation of them. The backend owns the economy: session
// grants, result settlement, purchase verification and the user-data snapshot
// are all decided server-side; this package only moves the payloads.
package backend

import "context"

// Mode selects the gameplay session type.
type Mode string

const (
	ModeEndless Mode = "endless"
	ModeChapter Mode = "chapter"
)

// SessionGrant is the outcome of a resource-gated session request.
// OK false means the gate rejected the request (insufficient resource);
// that is a normal outcome, not a transport error.
type SessionGrant struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId"`
}

// SubmitRequest carries the results of one finished run.
type SubmitRequest struct {
	SessionID         string  `json:"sessionId"`
	EarnedCurrency    int     `json:"earnedCurrency"`
	EarnedScore       int     `json:"earnedScore"`
	MaxCombo          int     `json:"maxCombo"`
	PlaytimeSeconds   float64 `json:"playtimeSeconds"`
	PowerUpsCollected int     `json:"powerUpsCollected"`
	Mode              Mode    `json:"mode"`
	Success           bool    `json:"success"`
}

// SubmitResult is the server's settlement of a submitted run.
type SubmitResult struct {
	AlreadyProcessed bool `json:"alreadyProcessed"`
	TotalCurrency    int  `json:"totalCurrency"`
	MaxScore         int  `json:"maxScore"`
}

// UserData is the server-owned projection of the player. It is always treated
// as last-known-good: local optimistic writes never survive a contradicting
// fresh snapshot except through the reconcile overlay.
type UserData struct {
	UserID              string   `json:"userId"`
	Username            string   `json:"username"`
	Currency            int      `json:"currency"`
	PremiumCurrency     int      `json:"premiumCurrency"`
	HasElitePass        bool     `json:"hasElitePass"`
	MaxScore            int      `json:"maxScore"`
	OwnedItems          []string `json:"ownedItems"`
	ClaimedAchievements []string `json:"claimedAchievements"`
	StreakDaysClaimed   int      `json:"streakDaysClaimed"`
}

// VerifyResult is the outcome of server-side receipt verification.
type VerifyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AchievementLevel is one claimable tier of an achievement.
type AchievementLevel struct {
	Level     int `json:"level"`
	Threshold int `json:"threshold"`
	Reward    int `json:"reward"`
}

// AchievementDef describes one achievement type and its tiers.
type AchievementDef struct {
	Type   string             `json:"type"`
	Levels []AchievementLevel `json:"levels"`
}

// AchievementState is the player's progress against one achievement type.
type AchievementState struct {
	Type         string `json:"type"`
	Progress     int    `json:"progress"`
	ClaimedLevel int    `json:"claimedLevel"`
}

// AchievementSnapshot pairs definitions with per-player states.
type AchievementSnapshot struct {
	Defs   []AchievementDef            `json:"defs"`
	States map[string]AchievementState `json:"states"`
}

// Client is the remote contract consumed by the core. Implementations must be
// safe for use from the single logical client thread; calls suspend only the
// calling flow.
type Client interface {
	RequestSession(ctx context.Context, mode Mode) (SessionGrant, error)
	SubmitGameplaySession(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	LoadUserData(ctx context.Context) (UserData, error)
	VerifyPurchase(ctx context.Context, productID, receipt string) (VerifyResult, error)
	FetchAchievementSnapshot(ctx context.Context) (AchievementSnapshot, error)
}
