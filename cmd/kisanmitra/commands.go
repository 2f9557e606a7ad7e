package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kisanmitra/kisanmitra/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask an agricultural question",
	Long: `Ask an agricultural question as text or recorded audio.

Examples:
  kisanmitra ask --language hi "गेहूं में पीला रतुआ का इलाज क्या है?"
  kisanmitra ask --language pa --crop rice --audio ./question.wav
  kisanmitra ask --language en --crop cotton "When should I apply urea?"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		crop, _ := cmd.Flags().GetString("crop")
		audioPath, _ := cmd.Flags().GetString("audio")
		question := strings.Join(args, " ")

		if language == "" {
			return fmt.Errorf("--language is required")
		}
		if question == "" && audioPath == "" {
			return fmt.Errorf("provide a question, an --audio file, or both")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		fields := map[string]string{
			"language": language,
			"crop":     crop,
			"question": question,
		}
		resp, err := client.postAsk(cmd.Context(), fields, audioPath)
		if err != nil {
			return err
		}

		var result struct {
			ID         string  `json:"id"`
			Crop       string  `json:"crop"`
			Question   string  `json:"question"`
			Transcript *string `json:"transcript"`
			Answer     string  `json:"answer"`
			Sources    *string `json:"sources"`
			TTSPath    string  `json:"tts_path"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Transcript != nil {
			fmt.Printf("%s %s\n\n", colorize(colorBold, "Heard:"), *result.Transcript)
		}
		fmt.Println(result.Answer)
		if result.Sources != nil && *result.Sources != "" {
			fmt.Printf("\n%s %s\n", colorize(colorBold, "Sources:"), *result.Sources)
		}
		fmt.Printf("\n%s %s\n", colorize(colorBold, "Audio:"), "/tts/"+result.TTSPath)
		printStatus("Interaction", "%s (crop: %s)", result.ID, result.Crop)
		return nil
	},
}

func init() {
	askCmd.Flags().String("language", "", "question language code, e.g. hi, pa, en")
	askCmd.Flags().String("crop", "", "crop the question is about")
	askCmd.Flags().String("audio", "", "path to a recorded audio question")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <interaction-id>",
	Short: "Rate a previous answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, _ := cmd.Flags().GetInt("rating")
		comment, _ := cmd.Flags().GetString("comment")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		form := url.Values{}
		form.Set("interaction_id", args[0])
		form.Set("rating", strconv.Itoa(rating))
		if comment != "" {
			form.Set("comment", comment)
		}

		resp, err := client.postForm(cmd.Context(), "/feedback", form)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Recorded feedback %s", result["id"])
		return nil
	},
}

func init() {
	feedbackCmd.Flags().Int("rating", 0, "rating for the answer")
	feedbackCmd.Flags().String("comment", "", "optional free-text comment")
	feedbackCmd.MarkFlagRequired("rating")
}

// --- interactions ---

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "Browse interaction history",
}

var interactionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent interactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/interactions?limit=%d", limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var interactions []struct {
			ID         string  `json:"id"`
			CreatedAt  string  `json:"created_at"`
			Language   string  `json:"language"`
			Crop       string  `json:"crop"`
			Question   *string `json:"question"`
			Transcript *string `json:"transcript"`
		}
		if err := decodeJSON(resp, &interactions); err != nil {
			return err
		}

		if len(interactions) == 0 {
			fmt.Println("No interactions found.")
			return nil
		}

		for _, ix := range interactions {
			question := ""
			if ix.Transcript != nil {
				question = *ix.Transcript
			} else if ix.Question != nil {
				question = *ix.Question
			}
			if len(question) > 80 {
				question = question[:80] + "..."
			}
			fmt.Printf("%s  %s  [%s/%s]  %s\n",
				colorize(colorCyan, ix.ID[:8]),
				ix.CreatedAt,
				ix.Language,
				ix.Crop,
				question,
			)
		}
		return nil
	},
}

var interactionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single interaction with its feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/interactions/"+args[0])
		if err != nil {
			return err
		}

		var interaction any
		if err := decodeJSON(resp, &interaction); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(interaction); err != nil {
			return err
		}

		fbResp, err := client.get(cmd.Context(), "/interactions/"+args[0]+"/feedback")
		if err != nil {
			return err
		}
		var feedback []any
		if err := decodeJSON(fbResp, &feedback); err != nil {
			return err
		}
		if len(feedback) > 0 {
			fmt.Println(colorize(colorBold, "Feedback:"))
			return enc.Encode(feedback)
		}
		return nil
	},
}

func init() {
	interactionsListCmd.Flags().Int("limit", 20, "maximum number of interactions to list")
	interactionsCmd.AddCommand(interactionsListCmd)
	interactionsCmd.AddCommand(interactionsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
