package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/models"
)

var (
	postKind        string
	postTitle       string
	postVisibility  string
	postLink        string
	postEventAt     string
	postPollOptions []string
	postMedia       []string
)

var postCmd = &cobra.Command{
	Use:   "post [content]",
	Short: "Create a post",
	Example: `  sparkfeed post "hello world"
  sparkfeed post --kind poll --title "Lunch?" --option pizza --option tacos
  sparkfeed post --kind image --media ./cat.png "look"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if s.client.CurrentUser() == nil {
			return fmt.Errorf("posting requires --email/--password or --token")
		}

		d := feed.Draft{
			Kind:       models.PostKind(postKind),
			Title:      postTitle,
			Visibility: models.Visibility(postVisibility),
			LinkURL:    postLink,
		}
		if len(args) == 1 {
			d.Content = args[0]
		}
		if postEventAt != "" {
			at, err := time.Parse(time.RFC3339, postEventAt)
			if err != nil {
				return fmt.Errorf("--event-at must be RFC3339: %w", err)
			}
			d.EventAt = &at
		}
		if d.Kind == models.KindPoll {
			d.Poll = &dto.PollDraft{Question: postTitle, Options: postPollOptions}
		}

		for _, path := range postMedia {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			url, err := s.store.UploadMedia(ctx, filepath.Base(path), data)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", path, err)
			}
			d.Media = append(d.Media, url)
		}

		rec, err := s.store.Create(ctx, d)
		if err != nil {
			return err
		}

		if output == "json" {
			printJSON(rec.Post)
			return nil
		}
		fmt.Printf("Created %s post %s\n", rec.Post.Kind, rec.ID)
		return nil
	},
}

func init() {
	postCmd.Flags().StringVar(&signInEmail, "email", "", "Sign in with this email")
	postCmd.Flags().StringVar(&signInPassword, "password", "", "Password for --email")
	postCmd.Flags().StringVar(&postKind, "kind", string(models.KindText), "Post kind: text, image, video, poll, event, link, spark")
	postCmd.Flags().StringVar(&postTitle, "title", "", "Title; for polls, the question")
	postCmd.Flags().StringVar(&postVisibility, "visibility", string(models.VisibilityPublic), "public, followers or private")
	postCmd.Flags().StringVar(&postLink, "link", "", "URL for link posts")
	postCmd.Flags().StringVar(&postEventAt, "event-at", "", "Start time for event posts (RFC3339)")
	postCmd.Flags().StringArrayVar(&postPollOptions, "option", nil, "Poll option (repeatable)")
	postCmd.Flags().StringArrayVar(&postMedia, "media", nil, "File to upload and attach (repeatable)")
}
