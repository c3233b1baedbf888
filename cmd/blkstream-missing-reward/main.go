// blkstream-missing-reward is a minimal example downstream consumer: it
// reads EnrichedBlocks from stdin and flags any block whose coinbase
// output total falls short of base reward plus collected fees — a
// structural sanity check, not a consensus validation.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	blog "github.com/Klingon-tech/blkstream/internal/log"
	"github.com/Klingon-tech/blkstream/internal/pipeio"
)

func main() {
	if err := blog.Init("info", false, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := blog.WithComponent("blkstream-missing-reward")

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	reader := pipeio.NewReader(os.Stdin, out, 1)

	var blocksFlagged, totalMissing uint64
	for {
		eb, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to decode block from stdin")
		}

		fee, ok := eb.Fee()
		if !ok {
			logger.Warn().Uint32("height", eb.Height).Msg("fee unavailable, launched with skip_prevout?")
			continue
		}

		blk, err := eb.Block()
		if err != nil {
			logger.Fatal().Err(err).Uint32("height", eb.Height).Msg("failed to decode block")
		}
		var coinbaseOutputs uint64
		for _, out := range blk.Transactions[0].TxOut {
			coinbaseOutputs += uint64(out.Value)
		}

		owed := eb.BaseReward() + fee
		if coinbaseOutputs >= owed {
			continue
		}
		missing := owed - coinbaseOutputs
		blocksFlagged++
		totalMissing += missing
		logger.Warn().
			Str("hash", eb.BlockHash.String()).
			Uint32("height", eb.Height).
			Uint64("tx_fees", fee).
			Uint64("coinbase_outputs", coinbaseOutputs).
			Uint64("missing_reward", missing).
			Msg("coinbase underpays base reward plus fees")
	}

	if err := out.Flush(); err != nil {
		logger.Fatal().Err(err).Msg("failed to flush stdout")
	}
	logger.Info().Uint64("total_missing_reward", totalMissing).Uint64("blocks_flagged", blocksFlagged).Msg("blkstream-missing-reward finished")
}
