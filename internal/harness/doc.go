// Package harness runs one conformance check of an emulator against a
// reference trace.
//
// A run is strictly sequential:
//
//  1. Load the reference trace; its line count N is the step budget.
//  2. Run the emulator as `<emulator> <rom> <N>` and wait for it to exit.
//  3. Reject a nonzero exit status without looking at the output.
//  4. Compare the captured lines with the reference, failing fast.
//
// Every failure is returned as a typed error. KindOf classifies it, and only
// the command line maps the kind to a process exit status.
//
// # Error kinds
//
//   - ReadError: the reference trace cannot be read. The emulator is not run.
//   - ProcessFailure: the emulator exited nonzero. Nothing is compared.
//   - TimeoutFailure: the emulator did not exit within Config.Timeout.
//   - LineCountMismatch: the emulator printed a different number of lines.
//     Nothing is parsed.
//   - FieldMismatch: a step differs in PC, A, X, Y, P, SP or CYC, or one of
//     its lines does not parse.
//
// # Usage
//
//	result, err := harness.Run(ctx, harness.Config{
//	    Emulator:  "./build/nes_test_runner",
//	    ROM:       "nestest.nes",
//	    Reference: "nestest.log",
//	    Timeout:   30 * time.Second,
//	}, report.New(os.Stdout, report.Options{}))
//	if err != nil {
//	    log.Fatalf("%s: %v", harness.KindOf(err), err)
//	}
package harness
