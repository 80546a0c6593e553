// =============================================================================
// SIAFI/EFD Reconciler - Main Entry Point
// =============================================================================
//
// USAGE:
//   reconciler reconcile    - Reconcile the SIAFI and EFD ledgers
//   reconciler ledger       - Load and print a single ledger
//   reconciler version      - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Ledgers, reconciliation engine, view hub, exports
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/siafi-efd-reconciler/cmd"
)

func main() {
	cmd.Execute()
}
