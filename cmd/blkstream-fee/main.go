// blkstream-fee is a minimal example downstream consumer: it reads
// EnrichedBlocks from stdin, prints each block's height, hash and total
// fee to stderr, and passes the stream through unchanged to stdout so
// it can sit in the middle of a `blkstream | blkstream-fee | ...` pipe.
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
	logger := blog.WithComponent("blkstream-fee")

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	reader := pipeio.NewReader(os.Stdin, out, 1)

	var blocks, missingFee uint64
	for {
		eb, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to decode block from stdin")
		}
		blocks++

		fee, ok := eb.Fee()
		if !ok {
			missingFee++
			logger.Warn().Uint32("height", eb.Height).Str("hash", eb.BlockHash.String()).
				Msg("fee unavailable for this block (launched with skip_prevout?)")
			continue
		}
		logger.Info().
			Uint32("height", eb.Height).
			Str("hash", eb.BlockHash.String()).
			Uint64("fee", fee).
			Msg("block")
	}

	if err := out.Flush(); err != nil {
		logger.Fatal().Err(err).Msg("failed to flush stdout")
	}
	logger.Info().Uint64("blocks", blocks).Uint64("missing_fee", missingFee).Msg("blkstream-fee finished")
}
