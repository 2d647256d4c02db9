// Package gitignore matches root-relative paths against gitignore-style
// patterns (see https://git-scm.com/docs/gitignore).
//
// A Matcher holds compiled patterns. Rules layers the engine's built-in
// exclusions, user exclude patterns and every .gitignore found under a root,
// loading nested files lazily and caching them by directory:
//
//	rules, _ := gitignore.NewRules(root, gitignore.RulesOptions{
//	    Exclude:       []string{"*.gen.go"},
//	    RespectGitignore: true,
//	})
//	if rules.Ignored("build/out.txt", false) {
//	    // skip
//	}
package gitignore
