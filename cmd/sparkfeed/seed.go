package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/database"
	"github.com/zfogg/sparkfeed/internal/seed"
	"gorm.io/gorm"
)

var seedOpts = seed.DevOptions()

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate or clean the database",
	Long: `Populate the database with generated profiles, posts and engagement.

  dev    profiles, posts of every kind, reactions, votes, shares and comments
  test   fixed accounts alice..eve (password "` + seed.DefaultPassword + `"), safe to rerun
  clean  delete all feed data`,
}

var seedDevCmd = &cobra.Command{
	Use:   "dev",
	Short: "Seed development data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			res, err := seed.NewSeeder(db).Seed(cmd.Context(), seedOpts)
			if err != nil {
				return err
			}
			printSeedResult(res)
			return nil
		})
	},
}

var seedTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Seed fixed test accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			res, err := seed.NewSeeder(db).SeedTest(cmd.Context())
			if err != nil {
				return err
			}
			printSeedResult(res)
			return nil
		})
	},
}

var seedCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete all feed data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			if err := seed.NewSeeder(db).Clean(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Database cleaned")
			return nil
		})
	},
}

func init() {
	seedDevCmd.Flags().IntVar(&seedOpts.Profiles, "profiles", seedOpts.Profiles, "Number of profiles")
	seedDevCmd.Flags().IntVar(&seedOpts.Posts, "posts", seedOpts.Posts, "Number of posts")
	seedDevCmd.Flags().IntVar(&seedOpts.Comments, "comments", seedOpts.Comments, "Number of comments")
	seedDevCmd.Flags().Int64Var(&seedOpts.Seed, "seed", seedOpts.Seed, "Random seed; 0 picks one")

	seedCmd.AddCommand(seedDevCmd, seedTestCmd, seedCleanCmd)
}

func withDB(fn func(db *gorm.DB) error) error {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close(db)
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return fn(db)
}

func printSeedResult(res *seed.Result) {
	if output == "json" {
		printJSON(res)
		return
	}
	fmt.Printf("Seeded %d profiles, %d posts, %d comments, %d reactions, %d votes, %d shares, %d spark edits\n",
		res.Profiles, res.Posts, res.Comments, res.Reactions, res.Votes, res.Shares, res.Edits)
}
