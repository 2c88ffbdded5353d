package sweepcore

import (
	"context"
	"fmt"
	"time"
)

// ExecuteCycle runs one full transfer cycle. Every failure is classified,
// logged and swallowed here so the outer loop always continues.
func (s *Sweeper) ExecuteCycle(ctx context.Context) {
	s.banner("STARTING AUTOMATIC TRANSFER")
	if err := s.cycle(ctx); err != nil {
		kind := Classify(err)
		if s.metrics != nil {
			s.metrics.CycleErrors.WithLabelValues(string(kind)).Inc()
		}
		s.log.Error().Str("kind", string(kind)).Err(err).Msg("cycle failed")
		fmt.Fprintf(s.out, "\nERROR [%s]: %v\n", kind, err)
	}
}

func (s *Sweeper) cycle(ctx context.Context) error {
	if err := s.PrintBalanceInfo(ctx); err != nil {
		return err
	}

	balance, err := s.TokenBalance(ctx, s.holder.Address())
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		fmt.Fprintln(s.out, "\nNo tokens to transfer (balance = 0)")
		return nil
	}

	fmt.Fprintln(s.out, "[1/3] Sending gas fee from funder to holder...")
	gasTxHash, ethSent, err := s.SendGasFee(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "  - Gas fee sent: %s\n", gasTxHash.Hex())
	fmt.Fprintf(s.out, "  - ETH sent: %s ETH\n", FormatEthAmount(ethSent, displayPrecision))

	fmt.Fprintf(s.out, "\n[2/3] Waiting %s for confirmation...\n", s.confirmWait)
	if !waitFor(ctx, s.confirmWait) {
		return nil
	}

	fmt.Fprintln(s.out, "\n[3/3] Transferring all tokens from holder to funder...")
	sweepTxHash, err := s.TransferAllTokens(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "  - Token transfer sent: %s\n", sweepTxHash.Hex())

	fmt.Fprintf(s.out, "\nWaiting %s for token transfer confirmation...\n", s.confirmWait)
	if !waitFor(ctx, s.confirmWait) {
		return nil
	}

	s.banner("FINAL RESULT")
	return s.PrintBalanceInfo(ctx)
}

// Run loops cycles until ctx is cancelled, waiting cycleInterval between
// them. Cancellation is observed within a second of being requested.
func (s *Sweeper) Run(ctx context.Context) {
	cycle := 0
	for ctx.Err() == nil {
		cycle++
		fmt.Fprintf(s.out, "\nStarting cycle #%d\n", cycle)
		s.log.Info().Int("cycle", cycle).Msg("cycle start")
		if s.metrics != nil {
			s.metrics.CyclesTotal.Inc()
		}
		s.ExecuteCycle(ctx)
		if ctx.Err() != nil {
			break
		}
		fmt.Fprintf(s.out, "\nWaiting %s before next cycle...\n", s.cycleInterval)
		if !waitFor(ctx, s.cycleInterval) {
			break
		}
	}
	fmt.Fprintln(s.out, "\nProgram stopped cleanly. Goodbye!")
}

// waitFor sleeps for d, checking cancellation once per second. Returns false
// when ctx was cancelled during the wait.
func waitFor(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		step := time.Second
		if d < step {
			step = d
		}
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		d -= step
	}
	return ctx.Err() == nil
}
