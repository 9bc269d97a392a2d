package app

// broadcast delivers msg to every attached connection. Delivery is a
// non-blocking enqueue per member, so a stalled connection only ever costs
// its own outbox slot.
func (s *Session) broadcast(msg Message) {
	for _, userID := range s.joinOrder {
		if m := s.presence.Member(userID); m != nil {
			s.deliver(userID, m, msg)
		}
	}
	if s.hostMember != nil {
		s.deliver(s.host.UserID, s.hostMember, msg)
	}
	for m := range s.viewers {
		s.deliver("", m, msg)
	}
}

// deliver sends msg to one member and drops members that keep failing.
func (s *Session) deliver(userID string, m Member, msg Message) {
	if m.Deliver(msg) {
		delete(s.failures, m)
		return
	}
	s.failures[m]++
	if s.failures[m] < s.cfg.MaxSendFailures {
		s.logger.Warn("dropped message for slow connection", "user_id", userID, "type", msg.Type, "failures", s.failures[m])
		return
	}

	s.logger.Warn("closing slow connection", "user_id", userID, "failures", s.failures[m])
	delete(s.failures, m)
	m.Close(CloseSlowConsumer)
	switch {
	case userID == "":
		delete(s.viewers, m)
	case userID == s.host.UserID && m == s.hostMember:
		s.hostMember = nil
	default:
		s.detach(userID, m)
	}
}
