package classify

const classifySystemPrompt = `You triage user feedback about a software product.

You receive one topic: a cluster of similar feedback posts. Classify it into exactly one category:

- BUG: a bug report, error, crash, or something not working as expected
- FEATURE: a feature request or suggestion for new functionality
- UX: UI/UX confusion, a usability issue, or a design improvement request
- OTHER: not actionable. General discussion, praise, off-topic or unclear

Then:
1. Write a short title in the style of an issue tracker title, at most 60 characters.
2. Write a concise 1-2 sentence summary.
3. For BUG only, pick a severity: critical for data loss or crashes, major for a broken feature, minor for cosmetic problems. Use "none" for every other category.
4. Say what a developer should do to address it.
5. Give your confidence from 0 to 1.`

const classifyUserTemplate = `## Topic title
%s

## Sample signals (user posts in this topic)
%s`
