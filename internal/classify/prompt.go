package classify

import "fmt"

// systemPrompt instructs the model to return exactly the keys ParseResponse
// validates.
const systemPrompt = `You extract structured facts from prediction-market text. Answer with JSON only.

Input: the TITLE and DESCRIPTION of one Polymarket market.

Output keys, nothing else:
  {"type": "1"|"2"|"U", "domain": "finance"|"sports"|"politics"|"misc", "date": "DD/MM/YYYY"|"", "reason": ""}

TYPE
- Find every explicit time expression first: dates, month and year, year only, quarters, relative deadlines, ranges.
- No explicit date or deadline at all: type "U", date "".
- Type "1" only when the text names one specific calendar day (for example "on 05 Nov 2026" or "2026-11-05") and carries no range or deadline wording.
- Type "2" when resolution may happen over a span of days or on a day that cannot be known in advance:
  "by", "before", "until", "through", "between X and Y", "from X to Y", "within N days", "at any point",
  "N days after launch" and other unknown triggers, "in 2026", "this year", quarters such as "Q1 2026".
- A fixed event day combined with any range or deadline wording is type "2".

DATE
- type "U": "".
- type "1": the single day named in the text.
- type "2": the deadline or the end of the range. "between A and B" and "from A to B" use B.
  "end of <Month YYYY>" or a bare month and year is the last day of that month.
  "in <YYYY>", "during <YYYY>" or "end of <YYYY>" is 31/12/YYYY.
  Q1 is 31/03, Q2 is 30/06, Q3 is 30/09, Q4 is 31/12.
- Use only the title and description, never outside knowledge.

DOMAIN (pick one)
- finance: crypto, tokens, FDV, price targets, ETFs, stocks, rates, inflation, CPI, earnings, macro, commodities.
- sports: leagues, teams, matches, tournaments, athletes, scores.
- politics: elections, candidates, parties, governments, legislation, wars and diplomacy framed as political outcomes.
- misc: anything else.

FORMAT
- Valid JSON with double quotes and no trailing commas.
- date is exactly DD/MM/YYYY or "".
- reason is at most 120 characters naming the time expression used. No other keys.
`

func userPrompt(title, description string) string {
	return fmt.Sprintf("Title: %s\nDescription: %s\n", title, description)
}
