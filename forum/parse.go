package forum

// ParsePost produces the rendered content for a post view. The raw stored
// content runs through the "filter:parse.post" chain (markdown, mentions,
// whatever plugins register) and the result is cached per pid. Posts being
// composed or previewed have no pid yet and bypass the cache.
func (f *Forum) ParsePost(post *Post) (*Post, error) {
	if post.PID > 0 {
		if content, ok := f.postCache.Get(post.PID); ok {
			post.Content = content
			return post, nil
		}
	}
	raw := post.Content
	result, err := f.hooks.FireFilter("filter:parse.post", map[string]interface{}{
		"content": raw,
		"pid":     post.PID,
		"uid":     post.UID,
	})
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]interface{}); ok {
		if content, ok := m["content"].(string); ok {
			post.Content = content
		}
	}
	if post.PID > 0 {
		f.postCache.Set(post.PID, post.Content)
	}
	return post, nil
}
