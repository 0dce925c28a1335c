package catalog

import "github.com/vibe-dev/academy/internal/domain"

// Levels is the built-in ascending level table.
var Levels = []domain.LevelInfo{
	{Level: 1, Title: "Novice", MinXP: 0, MaxXP: 100, Perks: []string{"Access to starter courses"}},
	{Level: 2, Title: "Apprentice", MinXP: 100, MaxXP: 250, Perks: []string{"Profile badge"}},
	{Level: 3, Title: "Builder", MinXP: 250, MaxXP: 500, Perks: []string{"Project showcase slot"}},
	{Level: 4, Title: "Developer", MinXP: 500, MaxXP: 1000, Perks: []string{"Custom avatar frame"}},
	{Level: 5, Title: "Engineer", MinXP: 1000, MaxXP: 2000, Perks: []string{"Extra AI tool credits"}},
	{Level: 6, Title: "Architect", MinXP: 2000, MaxXP: 4000, Perks: []string{"Mentor badge"}},
	{Level: 7, Title: "Vibe Master", MinXP: 4000, MaxXP: 8000, Perks: []string{"Early access to new courses"}},
	{Level: 8, Title: "Legend", MinXP: 8000, MaxXP: domain.Unbounded, Perks: []string{"Hall of fame"}},
}

// Achievements is the built-in achievement list. A zero XPReward takes the
// tier baseline when loaded through Default.
var Achievements = []domain.Achievement{
	// Learning
	{ID: "first_lesson", Title: "First Steps", Description: "Complete your first lesson",
		Tier: domain.TierBronze, Category: domain.CatLearning, Requirement: domain.LessonComplete{Value: 1}},
	{ID: "lessons_10", Title: "Quick Learner", Description: "Complete 10 lessons",
		Tier: domain.TierSilver, Category: domain.CatLearning, Requirement: domain.LessonComplete{Value: 10}},
	{ID: "lessons_50", Title: "Knowledge Seeker", Description: "Complete 50 lessons",
		Tier: domain.TierGold, Category: domain.CatLearning, Requirement: domain.LessonComplete{Value: 50}},
	{ID: "lessons_100", Title: "Scholar", Description: "Complete 100 lessons",
		Tier: domain.TierPlatinum, Category: domain.CatLearning, Requirement: domain.LessonComplete{Value: 100}},
	{ID: "vibe_basics_all", Title: "Vibe Fundamentals", Description: "Complete every lesson of Vibe Coding Basics",
		Tier: domain.TierSilver, Category: domain.CatLearning, Requirement: domain.LessonComplete{Value: 12, CourseID: "vibe-coding-basics"}},

	// Progress
	{ID: "first_course", Title: "Graduate", Description: "Complete your first course",
		Tier: domain.TierSilver, Category: domain.CatProgress, Requirement: domain.CourseComplete{Value: 1}},
	{ID: "courses_5", Title: "Curriculum Crusher", Description: "Complete 5 courses",
		Tier: domain.TierGold, Category: domain.CatProgress, Requirement: domain.CourseComplete{Value: 5}},
	{ID: "prompt_engineering_done", Title: "Prompt Whisperer", Description: "Finish Prompt Engineering",
		Tier: domain.TierGold, Category: domain.CatProgress, Requirement: domain.CourseComplete{Value: 1, CourseID: "prompt-engineering"}},
	{ID: "xp_1000", Title: "Rising Star", Description: "Earn 1,000 XP",
		Tier: domain.TierSilver, Category: domain.CatProgress, Requirement: domain.XPTotal{Value: 1000}},
	{ID: "xp_5000", Title: "Powerhouse", Description: "Earn 5,000 XP",
		Tier: domain.TierGold, Category: domain.CatProgress, Requirement: domain.XPTotal{Value: 5000}},
	{ID: "xp_10000", Title: "Unstoppable", Description: "Earn 10,000 XP",
		Tier: domain.TierDiamond, Category: domain.CatMastery, Requirement: domain.XPTotal{Value: 10000}},

	// Dedication
	{ID: "streak_3", Title: "On a Roll", Description: "Log in 3 days in a row",
		Tier: domain.TierBronze, Category: domain.CatDedication, Requirement: domain.StreakRequirement{Value: 3}},
	{ID: "streak_7", Title: "Week Warrior", Description: "Log in 7 days in a row",
		Tier: domain.TierSilver, Category: domain.CatDedication, Requirement: domain.StreakRequirement{Value: 7}},
	{ID: "streak_30", Title: "Monthly Devotee", Description: "Log in 30 days in a row",
		Tier: domain.TierGold, Category: domain.CatDedication, Requirement: domain.StreakRequirement{Value: 30}},
	{ID: "streak_100", Title: "Centurion", Description: "Log in 100 days in a row",
		Tier: domain.TierDiamond, Category: domain.CatDedication, Requirement: domain.StreakRequirement{Value: 100}, Secret: true},

	// Community
	{ID: "first_project", Title: "Maker", Description: "Upload your first project",
		Tier: domain.TierBronze, Category: domain.CatCommunity, Requirement: domain.ProjectCount{Value: 1}},
	{ID: "projects_10", Title: "Prolific Builder", Description: "Upload 10 projects",
		Tier: domain.TierGold, Category: domain.CatCommunity, Requirement: domain.ProjectCount{Value: 10}},
	{ID: "likes_10", Title: "Supportive Peer", Description: "Like 10 projects",
		Tier: domain.TierBronze, Category: domain.CatCommunity, Requirement: domain.LikeCount{Value: 10}},
	{ID: "likes_100", Title: "Community Pillar", Description: "Like 100 projects",
		Tier: domain.TierPlatinum, Category: domain.CatCommunity, Requirement: domain.LikeCount{Value: 100}, Secret: true},
}

// Challenges is the built-in daily challenge list.
var Challenges = []domain.DailyChallenge{
	{ID: "daily_login", Title: "Show Up", Description: "Log in today", XPReward: 10},
	{ID: "complete_lesson", Title: "Daily Lesson", Description: "Complete one lesson", XPReward: 25},
	{ID: "quiz_master", Title: "Quiz Master", Description: "Pass a quiz", XPReward: 30},
	{ID: "use_ai_tool", Title: "AI Explorer", Description: "Use any AI tool", XPReward: 20},
	{ID: "share_project", Title: "Show and Tell", Description: "Share a project with the community", XPReward: 40},
}
