package shared

import "fmt"

// PeriodRegistryLockKey serialises transitions of quarterly periods so the
// single-open-period rule is checked and written atomically.
const PeriodRegistryLockKey = "portal:periods:registry"

// LedgerLockKey builds the advisory lock key guarding a client's budget ledger.
func LedgerLockKey(clientID int64) string {
	return fmt.Sprintf("portal:ledger:%d", clientID)
}
