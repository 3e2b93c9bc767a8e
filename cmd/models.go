package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"knowgo/src/core/embedding"
)

// modelsCmd lists the embedding models the local runtime has cached.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List locally available embedding models",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	settingDefaultConfig()
}

func runModels(cmd *cobra.Command, args []string) error {
	local, err := embedding.NewLocal(
		viper.GetString("embedding.base_url"),
		viper.GetString("embedding.model"),
		viper.GetInt("embedding.dimensionality"),
	)
	if err != nil {
		return err
	}

	ctx := context.Background()
	models, err := local.ListModels(ctx)
	if err != nil {
		return err
	}

	info := local.Describe(ctx)
	fmt.Printf("runtime: %s (device: %s, available: %v)\n\n", info.Name, info.Device, info.Available)
	for _, m := range models {
		dim := "-"
		if m.Dimensionality > 0 {
			dim = fmt.Sprintf("%d", m.Dimensionality)
		}
		fmt.Printf("%-40s dim=%-6s size=%d\n", m.Name, dim, m.SizeBytes)
	}
	return nil
}
