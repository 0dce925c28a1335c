package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/daemon"
	"github.com/vibe-dev/academy/internal/domain"
)

func init() {
	lessonCmd.Flags().StringVarP(&lessonType, "type", "t", string(domain.LessonVideo),
		"Lesson type: video, reading, quiz, lab, project")
	awardCmd.Flags().BoolVar(&awardQueued, "queue", false, "Queue through the debounce batcher")

	rootCmd.AddCommand(statusCmd, awardCmd, loginCmd, lessonCmd, courseCmd,
		projectCmd, likeCmd, challengesCmd, challengeCmd, reconcileCmd)
}

var (
	lessonType  string
	awardQueued bool
)

var statusCmd = &cobra.Command{
	Use:   "status USER",
	Short: "Show a learner's XP, level and streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			printSnapshot(cmd.OutOrStdout(), s.Snapshot())
			return nil
		})
	},
}

var awardCmd = &cobra.Command{
	Use:   "award USER AMOUNT REASON...",
	Short: "Grant XP to a learner",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return domain.Invalid("amount", "%q is not a whole number", args[1])
		}
		reason := strings.Join(args[2:], " ")

		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			if awardQueued {
				if err := s.QueueXP(amount, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued +%d XP\n", amount)
				return nil
			}
			out, err := s.AwardXP(cmd.Context(), amount, reason, domain.XPMetadata{})
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login USER",
	Short: "Record a daily login and update the streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.Login(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var lessonCmd = &cobra.Command{
	Use:   "lesson USER COURSE LESSON",
	Short: "Complete a lesson",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.CompleteLesson(cmd.Context(), args[1], args[2], domain.LessonType(lessonType))
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var courseCmd = &cobra.Command{
	Use:   "course USER COURSE",
	Short: "Mark a course completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.CompleteCourse(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var projectCmd = &cobra.Command{
	Use:   "project USER PROJECT",
	Short: "Record a project upload",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.UploadProject(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var likeCmd = &cobra.Command{
	Use:   "like USER PROJECT",
	Short: "Like a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.LikeProject(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var challengesCmd = &cobra.Command{
	Use:   "challenges USER",
	Short: "List today's daily challenges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(d *daemon.Daemon, s *engagement.Session) error {
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "CHALLENGE\tXP\tDONE\t(%s)\n", domain.DayKey(d.Engine.Now()))
			for _, c := range s.Challenges(cmd.Context()) {
				done := ""
				if c.Completed {
					done = "yes"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.ID, c.XPReward, done, c.Title)
			}
			return w.Flush()
		})
	},
}

var challengeCmd = &cobra.Command{
	Use:   "challenge USER CHALLENGE",
	Short: "Complete a daily challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			out, err := s.CompleteChallenge(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile USER",
	Short: "Push a learner's offline progress to the profile store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), args[0], func(_ *daemon.Daemon, s *engagement.Session) error {
			res, err := s.Sync(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Synced %d XP, %d lesson(s), %d course(s), %d achievement(s)\n",
				res.PushedXP, res.Lessons, res.Courses, res.Achievements)
			for _, u := range res.Unlocks {
				fmt.Fprintf(w, "Achievement unlocked: %s\n", u.Achievement.Title)
			}
			return nil
		})
	},
}
