package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spechtlabs/strato/internal/cmd"
	"github.com/spechtlabs/strato/pkg/utils"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(injectCmd)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(context.Canceled)
	utils.InterruptHandler(ctx, cancel)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
