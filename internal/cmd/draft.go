package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var draftAttachImageCmd = &cobra.Command{
	Use:   "draft-attach-image <draft-key> <file>",
	Short: "Upload a local image to a configured Blossom server and attach it to a draft",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		s, err := openSession(ctx)
		if err != nil {
			return daemonUnreachableErr(err)
		}
		defer s.close()

		key, path := args[0], args[1]

		draft, ok := s.drafts.Get(key)
		if !ok {
			return invalidArgErr(fmt.Errorf("no draft %q", key))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return invalidArgErr(fmt.Errorf("reading %s: %w", path, err))
		}
		contentType := http.DetectContentType(data)

		ref, err := s.blobs.Upload(ctx, data, contentType)
		if err != nil {
			return invalidArgErr(fmt.Errorf("uploading %s: %w", filepath.Base(path), err))
		}

		id := draft.AddImageAttachment(ref.URL)
		if err := s.drafts.Save(key, draft); err != nil {
			return invalidArgErr(err)
		}
		fmt.Printf("%d\t%s\n", id, ref.URL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(draftAttachImageCmd)
}
