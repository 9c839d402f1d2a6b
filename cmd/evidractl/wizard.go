package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gosuda/evidra/internal/wizard"
)

func newWizardCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Step through declare, payload, retention, review and seal",
	}
	cmd.AddCommand(
		newStartCmd(opts),
		newPayloadCmd(opts),
		newRetentionCmd(opts),
		newReviewCmd(opts),
		newSealCmd(opts),
		newStatusCmd(opts),
		newBackCmd(opts),
		newCancelCmd(opts),
	)
	return cmd
}

func newStartCmd(opts *globalOptions) *cobra.Command {
	var d wizard.Declaration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Declare intent and create the draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			if d.RequestID == "" {
				// Reuse the id of an interrupted attempt so the retry replays.
				if prev := w.Session().Declaration.RequestID; prev != "" {
					d.RequestID = prev
				} else {
					d.RequestID = uuid.NewString()
				}
			}
			if err := w.Declare(cmd.Context(), d); err != nil {
				return explain(err, "start")
			}
			s := w.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "draft %s created (request id %s)\n", s.DraftID, d.RequestID)
			printNext(cmd.OutOrStdout(), s)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&d.RequestID, "request-id", "", "idempotency key (default: generated)")
	f.StringVar(&d.IngestionMethod, "method", "MANUAL_ENTRY", "ingestion method")
	f.StringVar(&d.SourceSystem, "source-system", "", "originating system, required for API and ERP ingestion")
	f.StringVar(&d.DatasetType, "dataset", "", "dataset type")
	f.StringVar(&d.DeclaredScope, "scope", "ENTIRE_ORGANIZATION", "declared scope")
	f.StringVar(&d.ScopeTargetID, "scope-target", "", "legal entity, site or product family id")
	f.StringVar(&d.Purpose, "purpose", "", "why this evidence is collected")
	return cmd
}

func newPayloadCmd(opts *globalOptions) *cobra.Command {
	var p wizard.Payload
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Attach a JSON object or a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			if err := w.AttachPayload(cmd.Context(), p); err != nil {
				return explain(err, "payload")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "payload attached")
			printNext(cmd.OutOrStdout(), w.Session())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.JSON, "json", "", "payload as a JSON object")
	f.StringVar(&p.FilePath, "file", "", "file to upload")
	f.StringVar(&p.ContentType, "content-type", "", "MIME type of the file (default: from extension)")
	cmd.MarkFlagsMutuallyExclusive("json", "file")
	cmd.MarkFlagsOneRequired("json", "file")
	return cmd
}

func newRetentionCmd(opts *globalOptions) *cobra.Command {
	var r wizard.Retention
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Declare retention policy and personal data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			if err := w.DeclareRetention(cmd.Context(), r); err != nil {
				return explain(err, "retention")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "retention recorded")
			printNext(cmd.OutOrStdout(), w.Session())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.Policy, "policy", "", "retention policy (default: STANDARD_7_YEARS)")
	f.BoolVar(&r.ContainsPersonalData, "personal-data", false, "the payload contains personal data")
	f.StringVar(&r.GDPRLegalBasis, "legal-basis", "", "GDPR legal basis, required with --personal-data")
	return cmd
}

func newReviewCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Show the draft as the server holds it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			d, err := w.Review(cmd.Context())
			if err != nil {
				return explain(err, "review")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "draft        %s (%s)\n", d.ID, d.Status)
			fmt.Fprintf(out, "method       %s from %s\n", d.IngestionMethod, d.SourceSystem)
			fmt.Fprintf(out, "dataset      %s\n", d.DatasetType)
			fmt.Fprintf(out, "scope        %s %s\n", d.DeclaredScope, d.ScopeTargetID)
			fmt.Fprintf(out, "purpose      %s\n", d.Purpose)
			fmt.Fprintf(out, "retention    %s\n", d.RetentionPolicy)
			fmt.Fprintf(out, "personal     %t %s\n", d.ContainsPersonalData, d.GDPRLegalBasis)
			fmt.Fprintf(out, "payload      %s %s\n", d.PayloadKind, d.PayloadHash)
			if d.Attachment != nil {
				fmt.Fprintf(out, "attachment   %s (%d bytes)\n", d.Attachment.FileName, d.Attachment.SizeBytes)
			}
			fmt.Fprintln(out, "run `evidractl wizard seal` to seal; sealed evidence cannot be changed")
			return nil
		},
	}
}

func newSealCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Seal the draft into an immutable evidence record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			res, err := w.Seal(cmd.Context())
			if err != nil {
				return explain(err, "seal")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sealed %s (%s)\n", res.DisplayID, res.EvidenceID)
			fmt.Fprintf(out, "payload hash   %s\n", res.PayloadHash)
			fmt.Fprintf(out, "metadata hash  %s\n", res.MetadataHash)
			return nil
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			s := w.Session()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s: step %d/5 %s\n", s.Name, s.Index()+1, s.Step)
			if s.DraftID != nil {
				fmt.Fprintf(out, "draft %s\n", s.DraftID)
			}
			printNext(out, s)
			return nil
		},
	}
}

func newBackCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "back",
		Short: "Return to the previous step",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			if err := w.Back(); err != nil {
				return err
			}
			printNext(cmd.OutOrStdout(), w.Session())
			return nil
		},
	}
}

func newCancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Forget the session; the server draft stays open",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := opts.open()
			if err != nil {
				return err
			}
			if err := w.Cancel(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		},
	}
}

var nextCommand = map[wizard.Step]string{ //nolint:gochecknoglobals // lookup table
	wizard.StepDeclare:   "start",
	wizard.StepPayload:   "payload",
	wizard.StepRetention: "retention",
	wizard.StepReview:    "review",
}

func printNext(out io.Writer, s wizard.Session) {
	if next, ok := nextCommand[s.Step]; ok {
		fmt.Fprintf(out, "next: evidractl wizard %s\n", next)
	}
}

// explain adds a retry hint to timeouts and the rejected field to server errors.
func explain(err error, command string) error {
	if errors.Is(err, wizard.ErrTimeout) {
		return fmt.Errorf("%w; run `evidractl wizard %s` again", err, command)
	}
	var rerr *wizard.RemoteError
	if errors.As(err, &rerr) && rerr.Field != "" {
		return fmt.Errorf("%s (field %s): %w", rerr.Code, rerr.Field, err)
	}
	return err
}
