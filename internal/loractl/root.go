package loractl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lorad/pkg/types"
)

// BuildRootCmd constructs the Cobra command tree.
func BuildRootCmd() *cobra.Command {
	server := envOr("LORAD_ADDR", "http://127.0.0.1:8080")

	root := &cobra.Command{
		Use:           "loractl",
		Short:         "Control a running lorad daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "Base URL of the lorad daemon (defaults LORAD_ADDR)")

	client := func() *Client {
		base := strings.TrimSuffix(server, "/")
		if strings.HasPrefix(base, ":") {
			base = "http://127.0.0.1" + base
		}
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "http://" + base
		}
		return NewClient(base)
	}

	root.AddCommand(
		statusCmd(client),
		modelsCmd(client),
		generateCmd(client),
		trainCmd(client),
		modelCmd(client),
		adapterCmd(client),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func statusCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state, loaded model, and applied adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("state: %s (up %.0fs)\n", st.State, st.UptimeS)
			if st.Model != nil {
				fmt.Printf("model: %s\n  path: %s\n  n_ctx: %d\n  training: %v\n",
					st.Model.Desc, st.Model.Path, st.Model.NCtx, st.Model.Training)
			}
			if st.Adapter != nil {
				if st.Adapter.Source != "" {
					fmt.Printf("adapter: loaded from %s\n", st.Adapter.Source)
				} else {
					fmt.Printf("adapter: rank=%d alpha=%g skip_layers=%d\n",
						st.Adapter.Rank, st.Adapter.Alpha, st.Adapter.SkipLayers)
				}
			}
			return nil
		},
	}
}

func modelsCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List model files in the daemon's models directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := client().Models(cmd.Context())
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Println("no models found")
				return nil
			}
			for _, m := range models {
				fmt.Printf("%s\t%.1f MB\n", m.ID, float64(m.SizeBytes)/(1<<20))
			}
			return nil
		},
	}
}

func generateCmd(client func() *Client) *cobra.Command {
	var (
		maxTokens int
		temp      float32
		seed      uint32
		stop      []string
		noStream  bool
	)
	cmd := &cobra.Command{
		Use:     "generate [prompt]",
		Short:   "Generate text from a prompt (reads stdin when omitted)",
		Example: "  loractl generate \"Once upon a time\" --max-tokens 64\n  echo \"prompt\" | loractl generate",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := argOrStdin(args)
			if err != nil {
				return err
			}
			req := types.GenerateRequest{
				Prompt:      prompt,
				MaxTokens:   maxTokens,
				Temperature: temp,
				Seed:        seed,
			}
			if cmd.Flags().Changed("stop") {
				req.Stop = stop
			}
			if noStream {
				resp, err := client().Generate(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Println(resp.Content)
				printUsage(resp)
				return nil
			}
			resp, err := client().GenerateStream(cmd.Context(), req, func(chunk string) {
				fmt.Print(chunk)
			})
			if err != nil {
				fmt.Println()
				return err
			}
			fmt.Println()
			printUsage(resp)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens to generate (0 = server default)")
	cmd.Flags().Float32Var(&temp, "temperature", 0, "Sampling temperature (<=0 greedy)")
	cmd.Flags().Uint32Var(&seed, "seed", 0, "Sampling seed (0 = nondeterministic)")
	cmd.Flags().StringSliceVar(&stop, "stop", nil, "Stop strings (pass an empty value to disable defaults)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full result instead of streaming")
	return cmd
}

func printUsage(resp types.GenerateResponse) {
	fmt.Fprintf(os.Stderr, "[%s] %d prompt + %d generated tokens in %.0fms (%s)\n",
		resp.ID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.DurationMS, resp.FinishReason)
}

func trainCmd(client func() *Client) *cobra.Command {
	var (
		file     string
		epochs   int
		lr       float64
		rank     int
		alpha    float32
		skip     int
		savePath string
	)
	cmd := &cobra.Command{
		Use:     "train",
		Short:   "Fine-tune a LoRA adapter on raw text",
		Example: "  loractl train --file corpus.txt --epochs 2 --save adapter.gguf",
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				text = string(b)
			} else {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return err
				}
				text = string(b)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("training text is empty (use --file or stdin)")
			}
			req := types.TrainRequest{
				Text:         text,
				Epochs:       epochs,
				LearningRate: lr,
				Rank:         rank,
				Alpha:        alpha,
				SkipLayers:   skip,
				SavePath:     savePath,
			}
			resp, err := client().Train(cmd.Context(), req,
				func(b types.TrainBatchLine) {
					fmt.Fprintf(os.Stderr, "\r%s %d/%d loss=%.4f (%.2f batch/s)",
						b.Phase, b.Batch, b.Batches, b.Loss, b.BatchesPerS)
				},
				func(e types.TrainEpochLine) {
					fmt.Fprintln(os.Stderr)
					if e.EvalLoss != nil {
						fmt.Printf("epoch %d/%d: train_loss=%.4f eval_loss=%.4f lr=%.2e (%.1fs)\n",
							e.Epoch, e.Epochs, e.TrainLoss, *e.EvalLoss, e.LearningRate, e.DurationS)
					} else {
						fmt.Printf("epoch %d/%d: train_loss=%.4f lr=%.2e (%.1fs)\n",
							e.Epoch, e.Epochs, e.TrainLoss, e.LearningRate, e.DurationS)
					}
				})
			if err != nil {
				fmt.Fprintln(os.Stderr)
				return err
			}
			fmt.Printf("done: %d epochs over %d examples\n", resp.Epochs, resp.NData)
			if resp.SavedPath != "" {
				fmt.Printf("adapter saved to %s\n", resp.SavedPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Training text file (stdin when omitted)")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "Number of epochs (0 = server default)")
	cmd.Flags().Float64Var(&lr, "lr", 0, "Initial learning rate (0 = server default)")
	cmd.Flags().IntVar(&rank, "rank", 0, "LoRA rank when creating a fresh adapter")
	cmd.Flags().Float32Var(&alpha, "alpha", 0, "LoRA alpha (0 = rank)")
	cmd.Flags().IntVar(&skip, "skip-layers", 0, "Leading layers left without adapter weights")
	cmd.Flags().StringVar(&savePath, "save", "", "Save the adapter here after training")
	return cmd
}

func modelCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("model requires a subcommand: load|unload")
		},
	}
	var (
		nCtx     int
		threads  int
		gpu      int
		training bool
	)
	load := &cobra.Command{
		Use:     "load <path>",
		Short:   "Load a model file, replacing the active one",
		Example: "  loractl model load /models/tiny.gguf --n-ctx 2048",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().LoadModel(cmd.Context(), types.LoadModelRequest{
				Path:       args[0],
				NCtx:       nCtx,
				NThreads:   threads,
				NGPULayers: gpu,
				Training:   training,
			})
			if err != nil {
				return err
			}
			if st.Model != nil {
				fmt.Printf("loaded %s (n_ctx %d)\n", st.Model.Desc, st.Model.NCtx)
			}
			return nil
		},
	}
	load.Flags().IntVar(&nCtx, "n-ctx", 0, "Context window (0 = default)")
	load.Flags().IntVar(&threads, "threads", 0, "Worker threads (0 = default)")
	load.Flags().IntVar(&gpu, "gpu-layers", 0, "Layers offloaded to GPU")
	load.Flags().BoolVar(&training, "training", false, "Create a training-capable context")

	unload := &cobra.Command{
		Use:   "unload",
		Short: "Drop the active model, context, and adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().UnloadModel(cmd.Context())
		},
	}
	cmd.AddCommand(load, unload)
	return cmd
}

func adapterCmd(client func() *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapter",
		Short: "Adapter lifecycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("adapter requires a subcommand: new|load|save|remove")
		},
	}
	var (
		rank  int
		alpha float32
		skip  int
		scale float32
	)
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Create and apply a fresh adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client().ApplyAdapter(cmd.Context(), types.AdapterRequest{
				Rank: rank, Alpha: alpha, SkipLayers: skip, Scale: scale,
			})
			return err
		},
	}
	newCmd.Flags().IntVar(&rank, "rank", 4, "LoRA rank")
	newCmd.Flags().Float32Var(&alpha, "alpha", 0, "LoRA alpha (0 = rank)")
	newCmd.Flags().IntVar(&skip, "skip-layers", 0, "Leading layers left without adapter weights")
	newCmd.Flags().Float32Var(&scale, "scale", 1, "Adapter scale applied to the context")

	loadCmd := &cobra.Command{
		Use:   "load <path>",
		Short: "Load an adapter file and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client().ApplyAdapter(cmd.Context(), types.AdapterRequest{Path: args[0], Scale: scale})
			return err
		},
	}
	loadCmd.Flags().Float32Var(&scale, "scale", 1, "Adapter scale applied to the context")

	saveCmd := &cobra.Command{
		Use:   "save <path>",
		Short: "Persist the applied adapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().SaveAdapter(cmd.Context(), args[0])
		},
	}
	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Detach and free the applied adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().RemoveAdapter(cmd.Context())
		},
	}
	cmd.AddCommand(newCmd, loadCmd, saveCmd, removeCmd)
	return cmd
}

func argOrStdin(args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	s := strings.TrimRight(string(b), "\n")
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("prompt is empty (pass an argument or pipe stdin)")
	}
	return s, nil
}

// Main runs the CLI and returns a process exit code.
func Main() int {
	root := BuildRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "loractl: %v\n", err)
		return 1
	}
	return 0
}
