package application

import (
	"fmt"

	posts "github.com/AzielCF/az-post/posts/domain"
)

func postLive(p *posts.Post) string {
	where := "Facebook"
	if p.SecondaryMediaID != "" {
		where = "Facebook and Instagram"
	}
	return fmt.Sprintf("🎉 Your post #%d is live on %s!", p.Sequence, where)
}

func postParked(p *posts.Post, reason string) string {
	return fmt.Sprintf("⚠️ Post #%d from %s could not be published: %s. Reconnect the Facebook page and retry the post.",
		p.Sequence, p.ContributorName, reason)
}
