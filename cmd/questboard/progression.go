package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/progression"
)

func rankCmd(opts *rootOptions) *cobra.Command {
	var xp int

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Show rank, level and experience to the next rank",
		RunE: func(cmd *cobra.Command, args []string) error {
			if xp < 0 {
				return fmt.Errorf("--xp must not be negative")
			}
			calc, err := opts.calculator(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rank=%s level=%d to_next=%d\n",
				calc.ExperienceToRank(xp), calc.Level(xp), calc.ExperienceToNextRank(xp))
			return nil
		},
	}
	cmd.Flags().IntVar(&xp, "xp", 0, "experience points")
	return cmd
}

func rewardCmd(opts *rootOptions) *cobra.Command {
	var (
		base       float64
		difficulty string
		rank       string
	)

	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Compute the payout of a quest for an adventurer rank",
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, err := opts.calculator(cmd)
			if err != nil {
				return err
			}
			d, err := parseDifficulty(calc, difficulty)
			if err != nil {
				return err
			}
			r := progression.Rank(rank)
			if !calc.HasRank(r) {
				return fmt.Errorf("unknown rank %q", rank)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", calc.ComputeReward(base, d, r))
			return nil
		},
	}
	cmd.Flags().Float64Var(&base, "base", 0, "base reward of the quest")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(domain.DifficultyEasy), "quest difficulty")
	cmd.Flags().StringVar(&rank, "rank", "F", "adventurer rank")
	return cmd
}

func experienceCmd(opts *rootOptions) *cobra.Command {
	var (
		difficulty string
		minutes    float64
	)

	cmd := &cobra.Command{
		Use:   "experience",
		Short: "Compute the experience earned for completing a quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if minutes < 0 {
				return fmt.Errorf("--minutes must not be negative")
			}
			calc, err := opts.calculator(cmd)
			if err != nil {
				return err
			}
			d, err := parseDifficulty(calc, difficulty)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", calc.ComputeExperience(d, minutes, calc.BaseExperience()))
			return nil
		},
	}
	cmd.Flags().StringVar(&difficulty, "difficulty", string(domain.DifficultyEasy), "quest difficulty")
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "minutes taken to complete the quest")
	return cmd
}

func (o *rootOptions) calculator(cmd *cobra.Command) (*progression.Calculator, error) {
	cfg, _, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	return progression.NewCalculator(cfg.Progression)
}

func parseDifficulty(calc *progression.Calculator, s string) (domain.Difficulty, error) {
	d := domain.Difficulty(s)
	if !calc.HasDifficulty(d) {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}
