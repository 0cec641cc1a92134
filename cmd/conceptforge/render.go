// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/conceptforge/pkg/ux"
	"github.com/AleutianAI/conceptforge/services/orchestrator"
	"github.com/AleutianAI/conceptforge/services/resolve"
)

func statusIcon(status resolve.Status) ux.Icon {
	switch status {
	case resolve.StatusResolved:
		return ux.IconSuccess
	case resolve.StatusFallback:
		return ux.IconWarning
	default:
		return ux.IconError
	}
}

// renderSet prints one resolved concept set for humans.
func renderSet(set orchestrator.SetOutput) {
	outcome := set.ResolutionOutcome

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", statusIcon(outcome.Status).Render(), ux.Styles.Title.Render(set.Name))
	fmt.Fprintf(&b, "%s %s",
		ux.Styles.Subtitle.Render("status:"), string(outcome.Status))
	if outcome.StopReason != "" {
		fmt.Fprintf(&b, "  %s %s",
			ux.Styles.Subtitle.Render("stopped:"), string(outcome.StopReason))
	}
	fmt.Fprintf(&b, "  %s %d\n",
		ux.Styles.Subtitle.Render("visits:"), outcome.VisitCount)

	switch outcome.Status {
	case resolve.StatusResolved:
		for _, concept := range set.IncludedConcepts {
			fmt.Fprintf(&b, "  %s %d  %s  %s\n",
				ux.IconBullet.Render(), concept.ConceptID, concept.ConceptName,
				ux.Styles.Muted.Render(concept.VocabularyID+"/"+concept.ConceptCode))
		}
		if outcome.Evidence != nil {
			fmt.Fprintf(&b, "  %s\n",
				ux.Styles.Muted.Render("evidence: "+outcome.Evidence.MatchType+" - "+outcome.Evidence.Reason))
		}
	case resolve.StatusFallback:
		if outcome.Concept != nil {
			fmt.Fprintf(&b, "  %s %d  %s %s\n",
				ux.IconBullet.Render(), outcome.Concept.ConceptID, outcome.Concept.ConceptName,
				ux.Styles.Warning.Render("(non-standard fallback)"))
		}
	default:
		fmt.Fprintf(&b, "  %s\n", ux.Styles.Error.Render("no acceptable concept found: "+outcome.Reason))
		if len(outcome.PendingCandidates) > 0 {
			fmt.Fprintf(&b, "  %s %v\n",
				ux.Styles.Muted.Render("unexplored candidates:"), outcome.PendingCandidates)
		}
	}

	fmt.Println(ux.Styles.Box.Render(strings.TrimRight(b.String(), "\n")))
}

// renderBuild prints a full cohort build for humans.
func renderBuild(result *orchestrator.BuildResult) {
	for _, set := range result.Sets {
		renderSet(set)
	}
	summary := result.Summary
	fmt.Printf("%s %d sets: %s, %s, %s - %d concepts total\n",
		ux.IconArrow.Render(), summary.TotalSets,
		ux.Styles.Success.Render(fmt.Sprintf("%d resolved", summary.Resolved)),
		ux.Styles.Warning.Render(fmt.Sprintf("%d fallback", summary.Fallback)),
		ux.Styles.Error.Render(fmt.Sprintf("%d unresolved", summary.Unresolved)),
		summary.TotalConcepts)
}
