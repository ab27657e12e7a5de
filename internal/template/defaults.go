package template

import "github.com/opsmith/playbookpilot/pkg/models"

func strPtr(s string) *string { return &s }

const webServerContent = `---
- name: Setup Web Server
  hosts: {{ hosts }}
  become: yes
  tasks:
    - name: Update apt cache
      apt:
        update_cache: yes
      when: ansible_os_family == "Debian"

    - name: Install {{ web_server }}
      apt:
        name: "{{ web_server }}"
        state: present
      when: ansible_os_family == "Debian"

    - name: Start and enable {{ web_server }} service
      systemd:
        name: "{{ web_server }}"
        state: started
        enabled: yes

    - name: Configure firewall
      ufw:
        rule: allow
        port: "{{ port }}"
        proto: tcp
      when: ansible_os_family == "Debian"
`

const databaseServerContent = `---
- name: Setup Database Server
  hosts: {{ hosts }}
  become: yes
  tasks:
    - name: Update apt cache
      apt:
        update_cache: yes
      when: ansible_os_family == "Debian"

    - name: Install {{ db_type }}
      apt:
        name: "{{ db_type }}"
        state: present
      when: ansible_os_family == "Debian"

    - name: Start and enable {{ db_type }} service
      systemd:
        name: "{{ db_type }}"
        state: started
        enabled: yes

    - name: Configure firewall for database
      ufw:
        rule: allow
        port: "{{ db_port }}"
        proto: tcp
      when: ansible_os_family == "Debian"
`

// defaultTemplates are seeded at startup when absent.
var defaultTemplates = []struct {
	Name        string
	Description *string
	Content     string
	Schema      *models.VariableSchema
}{
	{
		Name:        "Web Server Setup",
		Description: strPtr("Basic web server installation and configuration"),
		Content:     webServerContent,
		Schema: &models.VariableSchema{
			Properties: map[string]models.FieldSpec{
				"hosts":      {Type: models.FieldString, Default: "web_servers"},
				"web_server": {Type: models.FieldString, Enum: []any{"nginx", "apache2"}, Default: "nginx"},
				"port":       {Type: models.FieldInteger, Default: 80},
			},
			Required: []string{"hosts"},
		},
	},
	{
		Name:        "Database Server Setup",
		Description: strPtr("Database server installation and basic configuration"),
		Content:     databaseServerContent,
		Schema: &models.VariableSchema{
			Properties: map[string]models.FieldSpec{
				"hosts":   {Type: models.FieldString, Default: "db_servers"},
				"db_type": {Type: models.FieldString, Enum: []any{"postgresql", "mysql"}, Default: "postgresql"},
				"db_port": {Type: models.FieldInteger, Default: 5432},
			},
			Required: []string{"hosts"},
		},
	},
}
