package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "foresight"}

	root.AddCommand(serveCMD(), migrateCMD(), forecastCMD(), batchCMD(), searchCMD())
	_ = root.Execute()
}
